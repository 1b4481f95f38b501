package partition

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/local/chopdok/internal/apperr"
)

// LoadPlan reads a State from a YAML file such as
//
//	splitPoints: [4, 7]
//	deletedPages: [5]
//	partNames:
//	  0: Intro
//
// pageCount may be omitted; callers set it from the document.
func LoadPlan(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}, apperr.Input(err, "read plan %q", path)
	}
	return ParsePlan(data)
}

func ParsePlan(data []byte) (State, error) {
	var s State
	if err := yaml.Unmarshal(data, &s); err != nil {
		return State{}, apperr.Validation("invalid plan: %v", err)
	}
	return s, nil
}

// MarshalPlan renders s as YAML in the LoadPlan format.
func MarshalPlan(s State) ([]byte, error) {
	return yaml.Marshal(s)
}
