package gemini

import (
	"errors"
	"fmt"
	"strings"

	"github.com/casualjim/parley/messages"
	"github.com/casualjim/parley/provider"
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	roleUser     = "user"
	roleModel    = "model"
	roleFunction = "function"
)

type part struct {
	Text             *string           `json:"text,omitempty"`
	Thought          bool              `json:"thought,omitempty"`
	FunctionCall     *functionCall     `json:"functionCall,omitempty"`
	FunctionResponse *functionResponse `json:"functionResponse,omitempty"`
}

type functionCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type functionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type functionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type toolDeclarations struct {
	FunctionDeclarations []functionDeclaration `json:"function_declarations"`
}

type thinkingConfig struct {
	IncludeThoughts bool  `json:"includeThoughts"`
	ThinkingBudget  int64 `json:"thinkingBudget,omitempty"`
}

type generationConfig struct {
	Temperature     *float64        `json:"temperature,omitempty"`
	TopP            *float64        `json:"topP,omitempty"`
	MaxOutputTokens *int64          `json:"maxOutputTokens,omitempty"`
	StopSequences   []string        `json:"stopSequences,omitempty"`
	ThinkingConfig  *thinkingConfig `json:"thinkingConfig,omitempty"`
}

type request struct {
	SystemInstruction *content           `json:"system_instruction,omitempty"`
	Contents          []content          `json:"contents"`
	Tools             []toolDeclarations `json:"tools,omitempty"`
	GenerationConfig  *generationConfig  `json:"generationConfig,omitempty"`
}

var thinkingBudgets = map[string]int64{
	"low":    1024,
	"medium": 8192,
	"high":   24576,
}

// ToWire converts canonical history into Gemini contents. The history is only read.
func ToWire(history []messages.Message) []content {
	callNames := make(map[string]string)
	out := make([]content, 0, len(history))

	for _, msg := range history {
		switch msg.Role {
		case messages.RoleUser:
			out = append(out, content{
				Role:  roleUser,
				Parts: []part{{Text: messages.Text(msg.ContentString())}},
			})
		case messages.RoleAssistant:
			parts := make([]part, 0, len(msg.ToolCalls)+1)
			// Gemini rejects empty text parts, so an empty answer next to
			// tool calls is dropped and reads back as nil content.
			if msg.Content != nil && (*msg.Content != "" || !msg.HasToolCalls()) {
				parts = append(parts, part{Text: messages.Text(*msg.Content)})
			}
			for _, tc := range msg.ToolCalls {
				callNames[tc.ID] = tc.Name
				parts = append(parts, part{FunctionCall: &functionCall{
					ID:   tc.ID,
					Name: tc.Name,
					Args: tc.ParsedArguments(),
				}})
			}
			out = append(out, content{Role: roleModel, Parts: parts})
		case messages.RoleTool:
			name := msg.Name
			if name == "" {
				name = callNames[msg.ToolCallID]
			}
			out = append(out, content{
				Role: roleFunction,
				Parts: []part{{FunctionResponse: &functionResponse{
					ID:       msg.ToolCallID,
					Name:     name,
					Response: map[string]any{"content": msg.ContentString()},
				}}},
			})
		}
	}
	return out
}

// BuildRequest renders the request body for a generateContent call.
func BuildRequest(params provider.Params) ([]byte, error) {
	req := request{Contents: ToWire(params.History)}
	if strings.TrimSpace(params.Instructions) != "" {
		req.SystemInstruction = &content{Parts: []part{{Text: messages.Text(params.Instructions)}}}
	}

	if len(params.Tools) > 0 {
		decls := make([]functionDeclaration, 0, len(params.Tools))
		for _, def := range params.Tools {
			schema, err := def.Parameters()
			if err != nil {
				return nil, err
			}
			decls = append(decls, functionDeclaration{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  schema,
			})
		}
		req.Tools = []toolDeclarations{{FunctionDeclarations: decls}}
	}

	gen := params.Generation
	cfg := generationConfig{
		Temperature:     gen.Temperature,
		TopP:            gen.TopP,
		MaxOutputTokens: gen.MaxTokens,
		StopSequences:   gen.StopSequences,
	}
	if gen.ReasoningEffort != "" {
		cfg.ThinkingConfig = &thinkingConfig{IncludeThoughts: true, ThinkingBudget: thinkingBudgets[gen.ReasoningEffort]}
	}
	if cfg.Temperature != nil || cfg.TopP != nil || cfg.MaxOutputTokens != nil || len(cfg.StopSequences) > 0 || cfg.ThinkingConfig != nil {
		req.GenerationConfig = &cfg
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	for key, value := range gen.Extra {
		path := "generationConfig." + strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`).Replace(key)
		if body, err = sjson.SetBytes(body, path, value); err != nil {
			return nil, fmt.Errorf("set extra parameter %q: %w", key, err)
		}
	}
	return body, nil
}

// FromWire parses a generateContent request body back into instructions and
// canonical history. Function calls without an id get the deterministic
// call_<name>_<seq> identifier.
func FromWire(payload []byte) (string, []messages.Message, error) {
	if !gjson.ValidBytes(payload) {
		return "", nil, errors.New("payload is not valid JSON")
	}
	doc := gjson.ParseBytes(payload)

	sys := doc.Get("system_instruction")
	if !sys.Exists() {
		sys = doc.Get("systemInstruction")
	}
	var instructions []string
	sys.Get("parts").ForEach(func(_, p gjson.Result) bool {
		instructions = append(instructions, p.Get("text").String())
		return true
	})

	contents := doc.Get("contents")
	if !contents.IsArray() {
		return "", nil, errors.New("payload has no contents array")
	}

	var (
		history []messages.Message
		seq     int
		err     error
	)
	contents.ForEach(func(_, c gjson.Result) bool {
		role := c.Get("role").String()
		var (
			texts   []string
			hasText bool
			calls   []messages.ToolCall
			results []messages.Message
		)
		c.Get("parts").ForEach(func(_, p gjson.Result) bool {
			switch {
			case p.Get("functionCall").Exists():
				fc := p.Get("functionCall")
				name := fc.Get("name").String()
				id := fc.Get("id").String()
				if id == "" {
					id = messages.ToolCallID(name, seq)
				}
				seq++
				args := fc.Get("args").Raw
				if args == "" {
					args = "{}"
				}
				calls = append(calls, messages.ToolCall{ID: id, Name: name, Arguments: args})
			case p.Get("functionResponse").Exists():
				fr := p.Get("functionResponse")
				resp := fr.Get("response.content")
				text := resp.String()
				if !resp.Exists() {
					text = fr.Get("response").Raw
				} else if resp.Type == gjson.JSON {
					text = resp.Raw
				}
				results = append(results, messages.ToolResult(fr.Get("id").String(), fr.Get("name").String(), text))
			case p.Get("thought").Bool():
			case p.Get("text").Exists():
				hasText = true
				texts = append(texts, p.Get("text").String())
			}
			return true
		})

		switch {
		case len(results) > 0:
			history = append(history, results...)
		case role == roleModel:
			var text *string
			if hasText {
				text = messages.Text(strings.Join(texts, ""))
			}
			if len(calls) > 0 {
				history = append(history, messages.AssistantToolCalls(text, calls))
			} else {
				history = append(history, messages.Message{Role: messages.RoleAssistant, Content: text})
			}
		case role == roleUser || role == "":
			history = append(history, messages.User(strings.Join(texts, "")))
		default:
			err = fmt.Errorf("unsupported content role %q", role)
			return false
		}
		return true
	})
	if err != nil {
		return "", nil, err
	}
	return strings.Join(instructions, "\n\n"), history, nil
}
