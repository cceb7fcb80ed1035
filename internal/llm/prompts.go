package llm

const extractClaimsPrompt = `You extract factual claims from chat messages.

A claim is a short declarative statement about the world that could be checked
against an encyclopedia or news source. Ignore opinions, questions, greetings,
jokes and statements about the speaker.

For each claim give:
- statement: the claim as one self-contained sentence
- subject: the main entity the claim is about, lower case
- confidence: how clearly the message asserts it, from 0.0 to 1.0

Respond ONLY with a JSON array. No markdown, no explanation. Example:
[{"statement":"Paris is the capital of France","subject":"paris","confidence":0.8}]

If there are no claims, respond with an empty array: []

Message:
%s`
