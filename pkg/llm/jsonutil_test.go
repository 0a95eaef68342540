package llm

import "testing"

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"intent": "CREATE_TASK"}`, `{"intent": "CREATE_TASK"}`},
		{"fenced", "Here you go:\n```json\n{\"intent\": \"LIST_TASKS\"}\n```\n", `{"intent": "LIST_TASKS"}`},
		{"fence without language", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounded by prose", `Sure! {"a": 1} Hope that helps.`, `{"a": 1}`},
		{"trailing comma", `{"a": 1,}`, `{"a": 1}`},
		{"no json", "I cannot answer that.", ""},
	}
	for _, c := range cases {
		if got := ExtractJSON(c.in); got != c.want {
			t.Errorf("%s: ExtractJSON = %q, want %q", c.name, got, c.want)
		}
	}
}
