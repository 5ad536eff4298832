// Package mock provides a test double for ai.Summarizer.
//
// The default behavior is deterministic: the first sentence of the document
// becomes the summary and citations are found with ai.ExtractCitations.
//
//	summarizer := mock.NewMockSummarizer().
//	    WithSummarizeFunc(func(ctx context.Context, req ai.SummaryRequest) (*ai.Summary, error) {
//	        return nil, errors.New("model offline")
//	    })
//	count := summarizer.CallCount()
package mock
