package service

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Harshitk-cp/ranger/internal/domain"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

var ErrMissingChannel = fmt.Errorf("channel_id is required: %w", domain.ErrValidation)

const (
	defaultHistorySize = 10
	defaultMaxTopics   = 5
	defaultTopicDecay  = 0.8
	minTopicScore      = 0.05
	defaultMaxChannels = 10000
	defaultMaxUsers    = 10000

	preferredTopics   = 5
	preferredEmotions = 3
)

var topicKeywords = map[string][]string{
	"technology":    {"computer", "programming", "code", "software", "hardware", "ai", "machine learning", "internet"},
	"science":       {"science", "research", "experiment", "theory", "discovery", "physics", "chemistry", "biology"},
	"politics":      {"politics", "government", "election", "policy", "democracy", "capital"},
	"sports":        {"sports", "game", "team", "player", "match", "tournament", "olympics"},
	"entertainment": {"movie", "music", "book", "show", "entertainment", "celebrity"},
	"food":          {"food", "cooking", "recipe", "restaurant", "meal", "cuisine"},
	"travel":        {"travel", "vacation", "trip", "destination", "hotel", "flight"},
}

var emotionKeywords = map[string][]string{
	"happy":     {"happy", "joy", "excited", "great", "awesome", "amazing", "😊", "😄", "😃", "😁", "😂"},
	"sad":       {"sad", "depressed", "unhappy", "terrible", "awful", "horrible", "😢", "😭", "😔", "😞"},
	"angry":     {"angry", "mad", "furious", "annoyed", "irritated", "😠", "😡", "🤬", "😤"},
	"surprised": {"surprised", "shocked", "amazed", "wow", "incredible", "😲", "😳", "😱"},
	"love":      {"love", "adore", "heart", "cute", "sweet", "😍", "🥰", "😘", "💕"},
}

var emotionOrder = []string{"happy", "love", "surprised", "sad", "angry"}

var emotionValence = map[string]float64{"happy": 1, "love": 1, "surprised": 0, "sad": -1, "angry": -1}

type TopicDetector interface {
	Topics(text string) []domain.TopicScore
}

type EmotionDetector interface {
	Emotion(text string) domain.EmotionState
}

// KeywordTopics scores a topic by the number of its keywords in the text.
type KeywordTopics struct {
	Keywords map[string][]string
}

func (k KeywordTopics) Topics(text string) []domain.TopicScore {
	lower := strings.ToLower(text)
	words := make(map[string]bool)
	for _, w := range keyTokens(lower) {
		words[w] = true
	}

	var out []domain.TopicScore
	for topic, keywords := range k.Keywords {
		hits := 0
		for _, kw := range keywords {
			if strings.Contains(kw, " ") {
				if strings.Contains(lower, kw) {
					hits++
				}
			} else if words[kw] {
				hits++
			}
		}
		if hits > 0 {
			out = append(out, domain.TopicScore{Topic: topic, Score: float64(hits)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}

// KeywordEmotions labels text with the emotion whose keywords and emoji
// appear most often.
type KeywordEmotions struct {
	Keywords map[string][]string
}

func (k KeywordEmotions) Emotion(text string) domain.EmotionState {
	lower := strings.ToLower(text)
	words := make(map[string]bool)
	for _, w := range keyTokens(lower) {
		words[w] = true
	}

	counts := make(map[string]int)
	total := 0
	for label, keywords := range k.Keywords {
		for _, kw := range keywords {
			if words[kw] || (!isWord(kw) && strings.Contains(text, kw)) {
				counts[label]++
				total++
			}
		}
	}
	if total == 0 {
		return domain.EmotionState{Label: "neutral"}
	}

	best := ""
	for _, label := range emotionOrder {
		if counts[label] > counts[best] {
			best = label
		}
	}
	var valence float64
	for label, n := range counts {
		valence += emotionValence[label] * float64(n)
	}
	return domain.EmotionState{Label: best, Sentiment: valence / float64(total)}
}

func isWord(s string) bool {
	return len(keyTokens(s)) > 0
}

type ConversationConfig struct {
	HistorySize int
	MaxTopics   int
	TopicDecay  float64
	// MaxChannels and MaxUsers bound the tracked state. The least recently
	// active channel or user is dropped first.
	MaxChannels int
	MaxUsers    int
}

func DefaultConversationConfig() ConversationConfig {
	return ConversationConfig{
		HistorySize: defaultHistorySize,
		MaxTopics:   defaultMaxTopics,
		TopicDecay:  defaultTopicDecay,
		MaxChannels: defaultMaxChannels,
		MaxUsers:    defaultMaxUsers,
	}
}

type topicState struct {
	score    float64
	lastSeen uint64
}

type channelState struct {
	utterances []domain.Utterance
	topics     map[string]*topicState
	emotion    domain.EmotionState
	updatedAt  time.Time
}

// ConversationService keeps a rolling context per channel and counters per
// user. All state is owned here; callers get copies.
type ConversationService struct {
	topics   TopicDetector
	emotions EmotionDetector
	cfg      ConversationConfig
	logger   *zap.Logger

	mu       sync.Mutex
	seq      uint64
	channels *lru.Cache[string, *channelState]
	profiles *lru.Cache[string, *domain.UserProfile]
}

func NewConversationService(cfg ConversationConfig, logger *zap.Logger) *ConversationService {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	if cfg.MaxTopics <= 0 {
		cfg.MaxTopics = defaultMaxTopics
	}
	if cfg.TopicDecay <= 0 || cfg.TopicDecay > 1 {
		cfg.TopicDecay = defaultTopicDecay
	}
	if cfg.MaxChannels <= 0 {
		cfg.MaxChannels = defaultMaxChannels
	}
	if cfg.MaxUsers <= 0 {
		cfg.MaxUsers = defaultMaxUsers
	}
	// New only fails for a non-positive size.
	channels, _ := lru.New[string, *channelState](cfg.MaxChannels)
	profiles, _ := lru.New[string, *domain.UserProfile](cfg.MaxUsers)
	return &ConversationService{
		topics:   KeywordTopics{Keywords: topicKeywords},
		emotions: KeywordEmotions{Keywords: emotionKeywords},
		cfg:      cfg,
		logger:   logger,
		channels: channels,
		profiles: profiles,
	}
}

func (s *ConversationService) SetTopicDetector(d TopicDetector) {
	s.topics = d
}

func (s *ConversationService) SetEmotionDetector(d EmotionDetector) {
	s.emotions = d
}

// Observe folds an utterance into its channel's context and returns the
// updated context.
func (s *ConversationService) Observe(u domain.Utterance) (*domain.ConversationContext, error) {
	if strings.TrimSpace(u.ChannelID) == "" {
		return nil, ErrMissingChannel
	}
	if u.Timestamp.IsZero() {
		u.Timestamp = time.Now().UTC()
	}

	detected := s.topics.Topics(u.Text)
	emotion := s.emotions.Emotion(u.Text)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++

	st, ok := s.channels.Get(u.ChannelID)
	if !ok {
		st = &channelState{topics: make(map[string]*topicState)}
		if s.channels.Add(u.ChannelID, st) {
			s.logger.Debug("channel limit reached, dropped least recent", zap.Int("max_channels", s.cfg.MaxChannels))
		}
	}

	st.utterances = append(st.utterances, u)
	if over := len(st.utterances) - s.cfg.HistorySize; over > 0 {
		st.utterances = append([]domain.Utterance(nil), st.utterances[over:]...)
	}

	for name, t := range st.topics {
		t.score *= s.cfg.TopicDecay
		if t.score < minTopicScore {
			delete(st.topics, name)
		}
	}
	for _, d := range detected {
		t, ok := st.topics[d.Topic]
		if !ok {
			t = &topicState{}
			st.topics[d.Topic] = t
		}
		t.score += d.Score
		t.lastSeen = s.seq
	}
	for _, name := range rankTopics(st.topics)[min(len(st.topics), s.cfg.MaxTopics):] {
		delete(st.topics, name)
	}

	st.emotion = emotion
	st.updatedAt = u.Timestamp

	var profile *domain.UserProfile
	if u.UserID != "" {
		profile, _ = s.profiles.Get(u.UserID)
		if profile == nil {
			profile = &domain.UserProfile{
				UserID:        u.UserID,
				TopicCounts:   make(map[string]int),
				EmotionCounts: make(map[string]int),
			}
			if s.profiles.Add(u.UserID, profile) {
				s.logger.Debug("user limit reached, dropped least recent", zap.Int("max_users", s.cfg.MaxUsers))
			}
		}
		profile.MessageCount++
		profile.AvgSentiment += (emotion.Sentiment - profile.AvgSentiment) / float64(profile.MessageCount)
		if strings.Contains(u.Text, "?") {
			profile.QuestionCount++
		}
		for _, d := range detected {
			profile.TopicCounts[d.Topic]++
		}
		profile.EmotionCounts[emotion.Label]++
		profile.LastSeenAt = u.Timestamp
	}

	return s.snapshot(u.ChannelID, st, profile), nil
}

// Context returns a copy of a channel's current context.
func (s *ConversationService) Context(channelID string) (*domain.ConversationContext, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.channels.Peek(channelID)
	if !ok {
		return nil, false
	}
	return s.snapshot(channelID, st, nil), true
}

// UserPatterns summarises what the analyzer has seen from a user.
func (s *ConversationService) UserPatterns(userID string) (*domain.UserPatterns, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles.Peek(userID)
	if !ok {
		return nil, false
	}
	out := &domain.UserPatterns{
		UserID:            p.UserID,
		MessageCount:      p.MessageCount,
		AvgSentiment:      p.AvgSentiment,
		PreferredTopics:   topCounts(p.TopicCounts, preferredTopics),
		PreferredEmotions: topCounts(p.EmotionCounts, preferredEmotions),
		LastSeenAt:        p.LastSeenAt,
	}
	if p.MessageCount > 0 {
		out.QuestionRatio = float64(p.QuestionCount) / float64(p.MessageCount)
	}
	return out, true
}

func (s *ConversationService) Stats() domain.ConversationStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.ConversationStats{Channels: s.channels.Len(), Users: s.profiles.Len()}
}

// topCounts returns the n largest counts, ties broken by label.
func topCounts(counts map[string]int, n int) []domain.LabelCount {
	out := make([]domain.LabelCount, 0, len(counts))
	for label, c := range counts {
		out = append(out, domain.LabelCount{Label: label, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// rankTopics orders topics by score, ties going to the most recently seen.
func rankTopics(topics map[string]*topicState) []string {
	names := make([]string, 0, len(topics))
	for name := range topics {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := topics[names[i]], topics[names[j]]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.lastSeen != b.lastSeen {
			return a.lastSeen > b.lastSeen
		}
		return names[i] < names[j]
	})
	return names
}

func (s *ConversationService) snapshot(channelID string, st *channelState, profile *domain.UserProfile) *domain.ConversationContext {
	ctx := &domain.ConversationContext{
		ChannelID:       channelID,
		ActiveTopics:    rankTopics(st.topics),
		EmotionState:    st.emotion,
		LastNUtterances: append([]domain.Utterance(nil), st.utterances...),
		UpdatedAt:       st.updatedAt,
	}
	if profile != nil {
		p := *profile
		p.TopicCounts = copyCounts(profile.TopicCounts)
		p.EmotionCounts = copyCounts(profile.EmotionCounts)
		ctx.UserProfile = &p
	}
	return ctx
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
