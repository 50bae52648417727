package prompt

import (
	"github.com/deepnoodle-ai/conductor/llm"
	"github.com/deepnoodle-ai/conductor/session"
)

// RenderSystem renders the static payload: every section except the
// conversation history and the current task. This is what transports use
// as the system text and what server-side caches bake.
func (p *Prompt) RenderSystem() string {
	static := *p
	static.ConversationHistory = ConversationHistory{}
	static.CurrentTask = CurrentTask{}
	return static.Render()
}

// MessagesFromTurns maps history turns to transport messages. Model
// output becomes model messages; everything the model consumed becomes
// user messages.
func MessagesFromTurns(turns session.TurnList) []*llm.Message {
	messages := make([]*llm.Message, 0, len(turns))
	for _, turn := range turns {
		text := renderTurn(turn)
		if text == "" {
			continue
		}
		switch turn.Type {
		case session.TurnTypeModelResponse, session.TurnTypeFunctionCalling:
			messages = append(messages, llm.NewModelMessage(text))
		default:
			messages = append(messages, llm.NewUserMessage(text))
		}
	}
	return messages
}

// Messages returns the conversation for the transport: the pruned history
// followed by the current instruction as the trailing user message.
func (p *Prompt) Messages() []*llm.Message {
	messages := MessagesFromTurns(p.ConversationHistory.Turns)
	if p.CurrentTask.Instruction != "" {
		messages = append(messages, llm.NewUserMessage(p.CurrentTask.Instruction))
	}
	return messages
}
