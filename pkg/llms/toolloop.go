package llms

import (
	"context"
	"fmt"
)

const defaultMaxToolRounds = 8

// ToolRunner executes a tool call and returns its textual result. Errors are
// fed back to the model as tool output rather than aborting the loop.
type ToolRunner interface {
	Run(ctx context.Context, call ToolCall) (string, error)
}

// RunWithTools drives a generation to completion, executing tool calls
// between rounds. Scheduled tasks use this: tools run to completion and only
// the final text is returned.
func RunWithTools(ctx context.Context, client Client, req *Request, runner ToolRunner) (*Result, error) {
	messages := append([]Message(nil), req.conversation()...)
	total := Usage{}

	for round := 0; round < defaultMaxToolRounds; round++ {
		result, err := client.Generate(ctx, &Request{
			SystemPrompt: req.SystemPrompt,
			Messages:     messages,
			Tools:        req.Tools,
			Attachments:  req.Attachments,
			MaxTokens:    req.MaxTokens,
			Temperature:  req.Temperature,
		})
		if err != nil {
			return nil, err
		}

		if result.Usage != nil {
			total.InputTokens += result.Usage.InputTokens
			total.OutputTokens += result.Usage.OutputTokens
			total.TotalTokens += result.Usage.TotalTokens
		}

		if len(result.ToolCalls) == 0 {
			if total.TotalTokens > 0 {
				result.Usage = &total
			}
			return result, nil
		}

		// The assistant turn must echo its tool calls or providers reject
		// the tool results that follow.
		messages = append(messages, Message{
			Role:      RoleAssistant,
			Content:   result.Output,
			ToolCalls: result.ToolCalls,
		})
		for _, call := range result.ToolCalls {
			output, err := runner.Run(ctx, call)
			if err != nil {
				output = fmt.Sprintf(`{"error": %q}`, err.Error())
			}
			messages = append(messages, Message{
				Role:       RoleTool,
				Content:    output,
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}
	}

	return nil, fmt.Errorf("tool loop exceeded %d rounds without a final answer", defaultMaxToolRounds)
}
