package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dupesmith/dupesmith/internal/model"
)

func TestGenerateFromDefinitionRenamesAndReparameterizes(t *testing.T) {
	candidate := model.Candidate{
		Group: model.DuplicateGroup{
			Instances: []model.DuplicateInstance{
				{Match: model.Match{FilePath: "a.go", StartLine: 1, EndLine: 3, Text: `func Greet(name string) string { return "hello " + name }`}},
				{Match: model.Match{FilePath: "b.go", StartLine: 10, EndLine: 12, Text: `func Greet(person string) string { return "hello " + person }`}},
			},
		},
		Plan: model.VariationPlan{
			ParameterSlots: []model.ParameterSlot{
				{Name: "name", InferredType: "string", SampleValues: []string{"name", "person"}},
			},
		},
	}

	gen, err := Generate(candidate, "function_definition", "SharedGreet", "go")
	require.NoError(t, err)
	assert.Contains(t, gen.ExtractedDefinition, "func SharedGreet(name string) string")
	require.Len(t, gen.CallSites, 2)
	assert.Equal(t, "a.go", gen.CallSites[0].FilePath)
	assert.Contains(t, gen.CallSites[0].Replacement, "SharedGreet(name)")
	assert.Contains(t, gen.CallSites[1].Replacement, "SharedGreet(person)")
}

func TestGenerateFromDefinitionAddsNewParameterForPromotedLiteral(t *testing.T) {
	candidate := model.Candidate{
		Group: model.DuplicateGroup{
			Instances: []model.DuplicateInstance{
				{Match: model.Match{FilePath: "a.go", StartLine: 1, EndLine: 3, Text: `func Greet(name string) string { return "hello " + name }`}},
				{Match: model.Match{FilePath: "b.go", StartLine: 10, EndLine: 12, Text: `func Greet(name string) string { return "bye " + name }`}},
			},
		},
		Plan: model.VariationPlan{
			ParameterSlots: []model.ParameterSlot{
				{Name: "greeting", InferredType: "string", SampleValues: []string{`"hello "`, `"bye "`}},
			},
		},
	}

	gen, err := Generate(candidate, "function_definition", "SharedGreet", "go")
	require.NoError(t, err)
	assert.Contains(t, gen.ExtractedDefinition, "greeting string")
	assert.Contains(t, gen.ExtractedDefinition, "greeting + name")
}

func TestGenerateRejectsSingleInstanceCandidate(t *testing.T) {
	candidate := model.Candidate{
		Group: model.DuplicateGroup{
			Instances: []model.DuplicateInstance{
				{Match: model.Match{FilePath: "a.go", Text: "func F() {}"}},
			},
		},
	}
	_, err := Generate(candidate, "function_definition", "X", "go")
	require.Error(t, err)
}

func TestGenerateFromDefinitionMatchesPythonHeader(t *testing.T) {
	candidate := model.Candidate{
		Group: model.DuplicateGroup{
			Instances: []model.DuplicateInstance{
				{Match: model.Match{FilePath: "a.py", StartLine: 1, EndLine: 1, Text: `def greet_user(name): return "hello " + name`}},
				{Match: model.Match{FilePath: "b.py", StartLine: 10, EndLine: 10, Text: `def greet_user(person): return "hello " + person`}},
			},
		},
		Plan: model.VariationPlan{
			ParameterSlots: []model.ParameterSlot{
				{Name: "name", InferredType: "string", SampleValues: []string{"name", "person"}},
			},
		},
	}

	gen, err := Generate(candidate, "function_definition", "shared_greet", "python")
	require.NoError(t, err)
	assert.Contains(t, gen.ExtractedDefinition, "def shared_greet(name):")
	require.Len(t, gen.CallSites, 2)
	assert.Contains(t, gen.CallSites[0].Replacement, "shared_greet(name)")
	assert.Contains(t, gen.CallSites[1].Replacement, "shared_greet(person)")
}

func TestGoTypeMapsInferredTypes(t *testing.T) {
	assert.Equal(t, "int", goType("integer"))
	assert.Equal(t, "string", goType("string"))
	assert.Equal(t, "any", goType("unknown"))
}
