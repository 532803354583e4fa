package driven

import "context"

// MentionContext is what a classifier sees of one mention.
type MentionContext struct {
	SubjectTitle string
	CommentBody  string
	AuthorLogin  string
	TargetLogin  string
}

// MentionVerdict is a classifier's decision about a mention.
type MentionVerdict struct {
	RequiresResponse bool
	Reason           string
	Model            string
}

// MentionClassifier defines the driven port for deciding whether a mention
// asks the mentioned user for a response.
type MentionClassifier interface {
	ClassifyMention(ctx context.Context, mention MentionContext) (MentionVerdict, error)
}
