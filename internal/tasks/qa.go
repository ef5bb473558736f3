package tasks

import (
	"context"
	"fmt"
	"strings"

	"intentflow/internal/intent"
	"intentflow/internal/llm"
)

const (
	qaContextLimit  = 2000
	defaultQuestion = "Can you help me understand this content?"
)

type QAHandler struct {
	provider llm.Provider
}

func (q *QAHandler) Run(ctx context.Context, content string, utterance string) (Result, error) {
	question := strings.TrimSpace(utterance)
	if question == "" {
		question = defaultQuestion
	}
	answer := q.answer(ctx, question, content)
	return Result{
		ResultType: string(intent.QA),
		Response:   &answer,
		Success:    answer.Success,
	}, nil
}

func (q *QAHandler) answer(ctx context.Context, question string, contextText string) Answer {
	hasContext := strings.TrimSpace(contextText) != ""
	var user string
	if hasContext {
		user = fmt.Sprintf("Based on the following context, answer the question in a friendly and helpful manner.\n\nContext:\n%s\n\nQuestion: %s\n",
			llm.Truncate(contextText, qaContextLimit), question)
	} else {
		user = fmt.Sprintf("Answer the following question in a friendly and helpful manner:\n\nQuestion: %s\n", question)
	}

	out, err := q.provider.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			llm.System("You are a friendly and helpful AI assistant. Provide clear, conversational answers."),
			llm.User(user),
		},
		Temperature: 0.7,
		MaxTokens:   400,
	})
	if err != nil {
		return Answer{
			Answer:     fmt.Sprintf("I apologize, but I encountered an error talking to the language model: %v. Please check your API key and network, then try again.", err),
			HasContext: hasContext,
			Error:      err.Error(),
		}
	}
	return Answer{Answer: strings.TrimSpace(out), HasContext: hasContext, Success: true}
}
