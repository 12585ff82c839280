package imap

import "time"

// ParsedMessage holds the headers and decoded content of one IMAP message.
type ParsedMessage struct {
	UID        uint32
	MessageID  string
	InReplyTo  []string
	References []string
	Subject    string
	From       string
	To         []string
	Cc         []string
	Date       time.Time
	Flags      []string // \Seen, \Flagged, \Answered, \Deleted
	TextBody   string
	HTMLBody   string

	Attachments []Attachment
}

// Attachment holds metadata about a message attachment.
type Attachment struct {
	Filename string
	Size     int64
	MIMEType string
}

// FetchResult is one mailbox read.
type FetchResult struct {
	UIDValidity uint32
	Messages    []ParsedMessage
}
