package workers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridassist/server/internal/core/errx"
	supmodel "github.com/gridassist/server/internal/support/model"
)

func TestCleanJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain object", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding prose", "Here you go:\n{\"a\":1}\nHope that helps!", `{"a":1}`},
		{"nested braces survive", `Sure: {"a":{"b":2}} done`, `{"a":{"b":2}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CleanJSON(tc.in))
		})
	}
}

func TestDecodeInto(t *testing.T) {
	t.Run("fenced triage output", func(t *testing.T) {
		raw := "```json\n{\"response\":\"Where are you located?\",\"intent\":\"chat\",\"all_details_given\":false}\n```"
		var out supmodel.TriageOutput
		require.NoError(t, DecodeInto(raw, &out))
		assert.Equal(t, "chat", out.Intent)
		assert.Equal(t, "Where are you located?", out.Response)
	})

	t.Run("free text is a recoverable parse error", func(t *testing.T) {
		var out supmodel.TriageOutput
		err := DecodeInto("I could not decide on an intent, sorry.", &out)
		require.Error(t, err)
		assert.ErrorIs(t, err, errx.ErrWorkerOutput)
	})

	t.Run("empty output is a recoverable parse error", func(t *testing.T) {
		var out supmodel.TriageOutput
		err := DecodeInto("", &out)
		require.Error(t, err)
		assert.ErrorIs(t, err, errx.ErrWorkerOutput)
	})
}
