package chatbot

import (
	"github.com/pkg/errors"
)

// ValidatePromptTemplate checks that a template interpolates exactly two %s
// slots (history first, question second) and nothing else. Any other verb
// would corrupt the rendered prompt at turn time, so it is rejected up front.
// "%%" renders a literal percent and is allowed.
func ValidatePromptTemplate(tmpl string) error {
	slots := 0
	for i := 0; i < len(tmpl); i++ {
		if tmpl[i] != '%' {
			continue
		}
		if i+1 >= len(tmpl) {
			return errors.New("chatbot: prompt template ends with a bare %")
		}
		switch tmpl[i+1] {
		case '%':
			i++
		case 's':
			slots++
			i++
		default:
			return errors.Errorf("chatbot: prompt template contains unsupported verb %%%c", tmpl[i+1])
		}
	}
	if slots != 2 {
		return errors.Errorf("chatbot: prompt template must contain exactly two %%s slots, found %d", slots)
	}
	return nil
}
