// Package graph implements the mailbox Client backed by the Microsoft Graph
// API for Outlook accounts.
package graph

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/dray-supadev/api-gmail/internal/email"
)

// graphMessage is the Graph API wire shape of one message.
type graphMessage struct {
	ID               string           `json:"id"`
	ConversationID   string           `json:"conversationId"`
	Subject          string           `json:"subject"`
	BodyPreview      string           `json:"bodyPreview"`
	ReceivedDateTime string           `json:"receivedDateTime"`
	IsRead           bool             `json:"isRead"`
	HasAttachments   bool             `json:"hasAttachments"`
	From             *graphRecipient  `json:"from"`
	ToRecipients     []graphRecipient `json:"toRecipients"`
	CcRecipients     []graphRecipient `json:"ccRecipients"`
	Body             *messageBody     `json:"body"`
	ParentFolderID   string           `json:"parentFolderId"`
}

// graphListResponse is one page of a message listing. NextLink carries the
// opaque continuation URL for the following page.
type graphListResponse struct {
	Value    []graphMessage `json:"value"`
	NextLink string         `json:"@odata.nextLink"`
}

// graphFolder is the Graph API wire shape of one mail folder.
type graphFolder struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// graphFolderList is one page of a folder listing.
type graphFolderList struct {
	Value    []graphFolder `json:"value"`
	NextLink string        `json:"@odata.nextLink"`
}

// graphAttachmentItem is the Graph API wire shape of one attachment. The
// content bytes are present only on a single-attachment fetch.
type graphAttachmentItem struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	Size         int64  `json:"size"`
	IsInline     bool   `json:"isInline"`
	ContentBytes string `json:"contentBytes"`
}

// graphAttachmentList is the response of an attachment listing.
type graphAttachmentList struct {
	Value []graphAttachmentItem `json:"value"`
}

// graphProfile is the Graph API wire shape of the signed-in user.
type graphProfile struct {
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

// moveRequest is the body of a message move call.
type moveRequest struct {
	DestinationID string `json:"destinationId"`
}

// patchReadRequest is the body of a read-state mutation.
type patchReadRequest struct {
	IsRead bool `json:"isRead"`
}

// sendMailRequest is the top-level request body for the sendMail endpoint.
type sendMailRequest struct {
	Message         sendMailMessage `json:"message"`
	SaveToSentItems bool            `json:"saveToSentItems"`
}

// sendMailMessage represents the message portion of a sendMail request.
type sendMailMessage struct {
	Subject      string            `json:"subject"`
	Body         messageBody       `json:"body"`
	ToRecipients []graphRecipient  `json:"toRecipients"`
	CcRecipients []graphRecipient  `json:"ccRecipients,omitempty"`
	Attachments  []graphAttachment `json:"attachments,omitempty"`
}

// messageBody represents the body of an email message.
type messageBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// graphRecipient represents an email recipient.
type graphRecipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

// emailAddress represents an email address in a Graph API payload.
type emailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// graphAttachment represents a file attachment in a sendMail request.
type graphAttachment struct {
	ODataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes string `json:"contentBytes"`
}

// graphErrorResponse represents an error response from the Graph API.
type graphErrorResponse struct {
	Error graphError `json:"error"`
}

// graphError represents the error detail in a Graph API error response.
type graphError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// buildSendMailRequest converts an Outgoing message into a sendMail request
// body.
func buildSendMailRequest(out *email.Outgoing) *sendMailRequest {
	body := messageBody{ContentType: "text", Content: out.TextBody}
	if out.HtmlBody != "" {
		body = messageBody{ContentType: "html", Content: out.HtmlBody}
	}

	toRecipients := make([]graphRecipient, 0, len(out.To))
	for _, addr := range out.To {
		toRecipients = append(toRecipients, graphRecipient{
			EmailAddress: emailAddress{Address: addr},
		})
	}

	ccRecipients := make([]graphRecipient, 0, len(out.Cc))
	for _, addr := range out.Cc {
		ccRecipients = append(ccRecipients, graphRecipient{
			EmailAddress: emailAddress{Address: addr},
		})
	}

	attachments := make([]graphAttachment, 0, len(out.Attachments))
	for _, att := range out.Attachments {
		attachments = append(attachments, graphAttachment{
			ODataType:    "#microsoft.graph.fileAttachment",
			Name:         att.Filename,
			ContentType:  att.ContentType,
			ContentBytes: base64.StdEncoding.EncodeToString(att.Content),
		})
	}

	return &sendMailRequest{
		Message: sendMailMessage{
			Subject:      out.Subject,
			Body:         body,
			ToRecipients: toRecipients,
			CcRecipients: ccRecipients,
			Attachments:  attachments,
		},
		SaveToSentItems: true,
	}
}

// toMessage maps a Graph message onto the normalized model. Body fields are
// filled only when the wire message carried a body.
func (m *graphMessage) toMessage() email.Message {
	msg := email.Message{
		ID:             m.ID,
		ThreadID:       m.ConversationID,
		Subject:        m.Subject,
		Snippet:        m.BodyPreview,
		Unread:         !m.IsRead,
		HasAttachments: m.HasAttachments,
	}
	if m.From != nil {
		msg.From = formatAddress(m.From.EmailAddress)
	}
	for _, r := range m.ToRecipients {
		msg.To = append(msg.To, formatAddress(r.EmailAddress))
	}
	for _, r := range m.CcRecipients {
		msg.Cc = append(msg.Cc, formatAddress(r.EmailAddress))
	}
	if date, err := time.Parse(time.RFC3339, m.ReceivedDateTime); err == nil {
		msg.Date = date
	}
	if m.Body != nil {
		if m.Body.ContentType == "html" {
			msg.HtmlBody = m.Body.Content
		} else {
			msg.TextBody = m.Body.Content
		}
	}
	return msg
}

// formatAddress renders a Graph email address the way the Gmail backend
// renders raw headers, keeping the two backends' output comparable.
func formatAddress(a emailAddress) string {
	if a.Name == "" || a.Name == a.Address {
		return a.Address
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Address)
}
