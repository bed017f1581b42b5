package usecase

import (
	"context"
	"errors"
	"testing"
)

func TestHyDEUsesCollectionPrompt(t *testing.T) {
	generator := &textGeneratorFake{responses: []string{"  Die Marktlokation ist ... "}}
	hyde := NewHypotheticalAnswerGenerator(generator, map[string]string{"gas_ollama_768": "Gas-Prompt"})

	text, used := hyde.Generate(context.Background(), "Was ist eine MaLo?", "gas_ollama_768", nil)
	if !used || text != "Die Marktlokation ist ..." {
		t.Fatalf("unexpected result %q %v", text, used)
	}
	if generator.options[0].SystemPrompt != "Gas-Prompt" {
		t.Fatalf("expected collection prompt, got %q", generator.options[0].SystemPrompt)
	}

	_, _ = hyde.Generate(context.Background(), "q", "other", nil)
	if generator.options[1].SystemPrompt != defaultHyDEPrompt {
		t.Fatalf("expected default prompt for unknown collection")
	}
}

func TestHyDEReturnsQueryOnFailure(t *testing.T) {
	cases := map[string]*textGeneratorFake{
		"error": {err: errors.New("timeout")},
		"empty": {responses: []string{"   "}},
	}
	for name, generator := range cases {
		t.Run(name, func(t *testing.T) {
			text, used := NewHypotheticalAnswerGenerator(generator, nil).Generate(context.Background(), "expanded", "c", nil)
			if used || text != "expanded" {
				t.Fatalf("expected unchanged query, got %q %v", text, used)
			}
		})
	}
}

func TestHyDEChargesBudget(t *testing.T) {
	generator := &textGeneratorFake{responses: []string{"antwort"}}
	hyde := NewHypotheticalAnswerGenerator(generator, nil)
	budget := NewCallBudget(1)

	if _, used := hyde.Generate(context.Background(), "q", "c", budget); !used {
		t.Fatalf("expected hyde to run")
	}
	if budget.Used() != 1 {
		t.Fatalf("expected one charged call, got %d", budget.Used())
	}
	if text, used := hyde.Generate(context.Background(), "q", "c", budget); used || text != "q" {
		t.Fatalf("exhausted budget must disable hyde")
	}
	if generator.callCount() != 1 {
		t.Fatalf("no provider call expected after budget exhaustion")
	}
}
