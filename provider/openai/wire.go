package openai

import (
	"errors"
	"fmt"
	"strings"

	"github.com/casualjim/parley/messages"
	"github.com/casualjim/parley/provider"
	json "github.com/goccy/go-json"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ToWire converts instructions and canonical history into chat messages.
// The history is only read.
func ToWire(instructions string, history []messages.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	if strings.TrimSpace(instructions) != "" {
		result = append(result, openai.ChatCompletionMessageParam{
			Role:    openai.F(openai.ChatCompletionMessageParamRoleSystem),
			Content: openai.F[any](instructions),
		})
	}

	for _, msg := range history {
		switch msg.Role {
		case messages.RoleUser:
			result = append(result, openai.ChatCompletionMessageParam{
				Role:    openai.F(openai.ChatCompletionMessageParamRoleUser),
				Content: openai.F[any](msg.ContentString()),
			})
		case messages.RoleAssistant:
			am := openai.ChatCompletionMessageParam{
				Role: openai.F(openai.ChatCompletionMessageParamRoleAssistant),
			}
			if msg.Content != nil {
				am.Content = openai.F[any](*msg.Content)
			} else {
				am.Content = openai.Null[any]()
			}
			if msg.HasToolCalls() {
				tcd := make([]openai.ChatCompletionMessageToolCallParam, len(msg.ToolCalls))
				for i, tc := range msg.ToolCalls {
					args := tc.Arguments
					if args == "" {
						args = "{}"
					}
					tcd[i] = openai.ChatCompletionMessageToolCallParam{
						ID:   openai.String(tc.ID),
						Type: openai.F(openai.ChatCompletionMessageToolCallTypeFunction),
						Function: openai.F(openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      openai.String(tc.Name),
							Arguments: openai.String(args),
						}),
					}
				}
				am.ToolCalls = openai.F[any](tcd)
			}
			result = append(result, am)
		case messages.RoleTool:
			result = append(result, openai.ChatCompletionMessageParam{
				Role:       openai.F(openai.ChatCompletionMessageParamRoleTool),
				ToolCallID: openai.String(msg.ToolCallID),
				Content:    openai.F[any](msg.ContentString()),
			})
		}
	}
	return result
}

func toolsToWire(params provider.Params) ([]openai.ChatCompletionToolParam, error) {
	tools := make([]openai.ChatCompletionToolParam, 0, len(params.Tools))
	for _, def := range params.Tools {
		jv, err := def.Parameters()
		if err != nil {
			return nil, err
		}

		fn := openai.FunctionDefinitionParam{
			Name:       openai.String(def.Name),
			Parameters: openai.F(shared.FunctionParameters(jv)),
		}
		if strings.TrimSpace(def.Description) != "" {
			fn.Description = openai.String(def.Description)
		}

		tools = append(tools, openai.ChatCompletionToolParam{
			Type:     openai.F(openai.ChatCompletionToolTypeFunction),
			Function: openai.F(fn),
		})
	}
	return tools, nil
}

// BuildRequest renders the request body for a chat completion call.
func BuildRequest(params provider.Params, stream bool) ([]byte, error) {
	if strings.TrimSpace(params.Model) == "" {
		return nil, errors.New("model must not be empty")
	}

	tools, err := toolsToWire(params)
	if err != nil {
		return nil, err
	}

	gen := params.Generation
	req := openai.ChatCompletionNewParams{
		Messages: openai.F(ToWire(params.Instructions, params.History)),
		Model:    openai.F(params.Model),
	}
	if gen.Temperature != nil {
		req.Temperature = openai.Float(*gen.Temperature)
	}
	if gen.TopP != nil {
		req.TopP = openai.Float(*gen.TopP)
	}
	if gen.MaxTokens != nil {
		req.MaxTokens = openai.Int(*gen.MaxTokens)
	}
	if len(tools) > 0 {
		req.Tools = openai.F(tools)
		req.ParallelToolCalls = openai.Bool(true)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	if stream {
		if body, err = sjson.SetBytes(body, "stream", true); err != nil {
			return nil, err
		}
		if body, err = sjson.SetBytes(body, "stream_options.include_usage", true); err != nil {
			return nil, err
		}
	}
	if len(gen.StopSequences) > 0 {
		if body, err = sjson.SetBytes(body, "stop", gen.StopSequences); err != nil {
			return nil, err
		}
	}
	if gen.ReasoningEffort != "" {
		if body, err = sjson.SetBytes(body, "reasoning_effort", gen.ReasoningEffort); err != nil {
			return nil, err
		}
	}
	for key, value := range gen.Extra {
		if body, err = sjson.SetBytes(body, escapePath(key), value); err != nil {
			return nil, fmt.Errorf("set extra parameter %q: %w", key, err)
		}
	}
	return body, nil
}

func escapePath(key string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)
	return r.Replace(key)
}

// FromWire parses a chat completion request body back into instructions and
// canonical history. Content may be a string or an array of text parts.
func FromWire(payload []byte) (string, []messages.Message, error) {
	if !gjson.ValidBytes(payload) {
		return "", nil, errors.New("payload is not valid JSON")
	}
	msgs := gjson.GetBytes(payload, "messages")
	if !msgs.IsArray() {
		return "", nil, errors.New("payload has no messages array")
	}

	var (
		instructions []string
		history      []messages.Message
		callNames    = map[string]string{}
		err          error
	)
	msgs.ForEach(func(_, m gjson.Result) bool {
		role := m.Get("role").String()
		switch role {
		case "system", "developer":
			instructions = append(instructions, contentText(m.Get("content")))
		case "user":
			history = append(history, messages.User(contentText(m.Get("content"))))
		case "assistant":
			var content *string
			if c := m.Get("content"); c.Exists() && c.Type != gjson.Null {
				content = messages.Text(contentText(c))
			}
			var calls []messages.ToolCall
			m.Get("tool_calls").ForEach(func(_, tc gjson.Result) bool {
				call := messages.ToolCall{
					ID:        tc.Get("id").String(),
					Name:      tc.Get("function.name").String(),
					Arguments: tc.Get("function.arguments").String(),
				}
				callNames[call.ID] = call.Name
				calls = append(calls, call)
				return true
			})
			if len(calls) > 0 {
				history = append(history, messages.AssistantToolCalls(content, calls))
			} else {
				history = append(history, messages.Message{Role: messages.RoleAssistant, Content: content})
			}
		case "tool":
			id := m.Get("tool_call_id").String()
			name := m.Get("name").String()
			if name == "" {
				name = callNames[id]
			}
			history = append(history, messages.ToolResult(id, name, contentText(m.Get("content"))))
		default:
			err = fmt.Errorf("unsupported message role %q", role)
			return false
		}
		return true
	})
	if err != nil {
		return "", nil, err
	}
	return strings.Join(instructions, "\n\n"), history, nil
}

func contentText(content gjson.Result) string {
	if !content.IsArray() {
		return content.String()
	}
	var sb strings.Builder
	content.ForEach(func(_, part gjson.Result) bool {
		if t := part.Get("type").String(); t == "" || t == "text" {
			sb.WriteString(part.Get("text").String())
		}
		return true
	})
	return sb.String()
}
