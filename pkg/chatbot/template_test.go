package chatbot

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidatePromptTemplate(t *testing.T) {
	valid := []string{
		"History: %s\nHuman: %s\nAssistant:",
		"%s%s",
		"100%% sure about this: %s then %s",
	}
	for _, tmpl := range valid {
		require.NoError(t, ValidatePromptTemplate(tmpl), "template %q", tmpl)
	}

	invalid := []string{
		"",
		"no slots at all",
		"only one %s",
		"three %s %s %s",
		"stray verb %s %s %d",
		"escaped away %%s %s",
		"trailing bare %s %s %",
	}
	for _, tmpl := range invalid {
		require.Error(t, ValidatePromptTemplate(tmpl), "template %q", tmpl)
	}
}
