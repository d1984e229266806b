package model

import (
	"encoding/json"
	"strings"
)

// Message is a drafted outreach. Email drafts carry a subject; other
// channels carry only Content and serialize as a bare string.
type Message struct {
	Subject string `json:"subject,omitempty"`
	Content string `json:"content"`
	IsEmail bool   `json:"-"`
}

// MarshalJSON emits {subject, content} for email and a string otherwise.
func (m Message) MarshalJSON() ([]byte, error) {
	if !m.IsEmail {
		return json.Marshal(m.Content)
	}
	return json.Marshal(struct {
		Subject string `json:"subject"`
		Content string `json:"content"`
	}{m.Subject, m.Content})
}

// UnmarshalJSON accepts either shape.
func (m *Message) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*m = Message{Content: s}
		return nil
	}
	var obj struct {
		Subject string `json:"subject"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*m = Message{Subject: obj.Subject, Content: obj.Content, IsEmail: true}
	return nil
}

// Text renders the message as it is stored in an activity log.
func (m Message) Text() string {
	if m.IsEmail && m.Subject != "" {
		return m.Subject + "\n\n" + m.Content
	}
	return m.Content
}

// SplitEdited turns a user-edited email body back into subject and content:
// the subject is everything before the first blank line.
func SplitEdited(text string) Message {
	subject, content, found := strings.Cut(text, "\n\n")
	if !found {
		return Message{Content: strings.TrimSpace(text), IsEmail: true}
	}
	return Message{
		Subject: strings.TrimSpace(subject),
		Content: strings.TrimSpace(content),
		IsEmail: true,
	}
}

// Draft pairs a customer with the message generated for them.
type Draft struct {
	CustomerID   string  `json:"customerId"`
	CustomerName string  `json:"customerName"`
	Preference   string  `json:"preference"`
	Message      Message `json:"message"`
	Error        string  `json:"error,omitempty"`
}
