package models

const (
	ContextSeparator = "\n---\n"
	ThinkTag         = `(?s)<think>.*?</think>`
	ListMarkerRegex  = `^\s*(?:\d+[.)]|[-*•])\s+`
)

var (
	QueryPromptTemplate = `You are an AI language model assistant. Your task is to generate five
different versions of the given user question to retrieve relevant documents from
a vector database. By generating multiple perspectives on the user question, your
goal is to help the user overcome some of the limitations of the distance-based
similarity search. Provide these alternative questions separated by newlines.
Original question: %s`

	AnswerPromptTemplate = `You are a helpful document assistant. Answer the question thoroughly and concisely based ONLY on the following context. If the answer cannot be found in the context, politely state that you don't have enough information from the provided document.

Context:
%s

Question: %s
`
)
