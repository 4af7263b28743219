package rag

import (
	"fmt"

	"github.com/kirillkom/docqa/internal/core/domain"
)

type Rejection struct {
	Message   string
	FollowUps []string
}

var rejections = map[domain.RejectionReason]Rejection{
	domain.RejectionEmptyCorpus: {
		Message: "No documents are currently available for querying. Please upload documents first.",
		FollowUps: []string{
			"How do I upload documents?",
			"What file formats are supported?",
			"Can I upload multiple files?",
		},
	},
	domain.RejectionEmptyScope: {
		Message: "Information not found in the selected document.",
		FollowUps: []string{
			"Search all documents instead?",
			"Try a different question about this document",
			"Upload additional related documents",
		},
	},
	domain.RejectionLowConfidence: {
		Message: "No relevant information found in your documents.",
		FollowUps: []string{
			"Try rephrasing your question",
			"Upload more relevant documents",
			"Ask a different question",
		},
	},
}

// RejectionFor returns the fixed explanation and follow-up prompts for reason.
// document names the filtered document, if any.
func RejectionFor(reason domain.RejectionReason, document string) Rejection {
	r, ok := rejections[reason]
	if !ok {
		r = rejections[domain.RejectionLowConfidence]
	}
	msg := r.Message
	if reason == domain.RejectionEmptyScope && document != "" {
		msg = fmt.Sprintf("Information not found in %s.", document)
	}
	return Rejection{
		Message:   msg,
		FollowUps: append([]string(nil), r.FollowUps...),
	}
}
