// Package agent is a small tool-calling runtime on top of an OpenAI-compatible
// chat completion API.
//
// Tools are explicit descriptors registered with a Registry. Conversations
// live in a SessionService and are addressed by id. Runner.Run submits one
// user turn and streams Events: every executed tool call, then either a final
// text answer or an error. Consumers that only care about the first terminal
// event cancel the context after receiving it.
package agent
