package domain

import "time"

type Utterance struct {
	Text      string    `json:"text"`
	ChannelID string    `json:"channel_id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

type EmotionState struct {
	Label     string  `json:"label"`
	Sentiment float64 `json:"sentiment"`
}

// UserProfile accumulates per-user preference counters.
type UserProfile struct {
	UserID        string         `json:"user_id"`
	MessageCount  int            `json:"message_count"`
	QuestionCount int            `json:"question_count"`
	TopicCounts   map[string]int `json:"topic_counts"`
	EmotionCounts map[string]int `json:"emotion_counts"`
	AvgSentiment  float64        `json:"avg_sentiment"`
	LastSeenAt    time.Time      `json:"last_seen_at"`
}

type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// UserPatterns summarises a profile: the share of questions and the topics
// and emotions a user shows most.
type UserPatterns struct {
	UserID            string       `json:"user_id"`
	MessageCount      int          `json:"message_count"`
	QuestionRatio     float64      `json:"question_ratio"`
	AvgSentiment      float64      `json:"avg_sentiment"`
	PreferredTopics   []LabelCount `json:"preferred_topics"`
	PreferredEmotions []LabelCount `json:"preferred_emotions"`
	LastSeenAt        time.Time    `json:"last_seen_at"`
}

// ConversationStats counts what the analyzer currently tracks.
type ConversationStats struct {
	Channels int `json:"channels"`
	Users    int `json:"users"`
}

// ConversationContext is owned by the conversation analyzer. Values handed
// out are copies; mutating them has no effect on the analyzer.
type ConversationContext struct {
	ChannelID       string       `json:"channel_id"`
	ActiveTopics    []string     `json:"active_topics"`
	EmotionState    EmotionState `json:"emotion_state"`
	LastNUtterances []Utterance  `json:"last_n_utterances"`
	UserProfile     *UserProfile `json:"user_profile,omitempty"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// TopicScore is a detector's estimate that a topic is present in a text.
type TopicScore struct {
	Topic string
	Score float64
}
