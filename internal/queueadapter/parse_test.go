package queueadapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycore/bulkmailer/internal/domain"
)

func TestParseBody_BodyFieldsOnly(t *testing.T) {
	req, err := ParseBody(`{"to":"u@x.com","subject":"hi","html":"<p>hi</p>"}`, nil)
	require.NoError(t, err)
	assert.Equal(t, "u@x.com", req.Recipient)
	assert.Equal(t, "hi", req.Subject)
	assert.Equal(t, "<p>hi</p>", req.Body)
	assert.Equal(t, domain.ContentHTML, req.ContentKind)
}

func TestParseBody_AttributesOverrideBody(t *testing.T) {
	req, err := ParseBody(
		`{"to":"body@x.com","subject":"body subject","text":"hello"}`,
		map[string]string{"to": "attr@x.com", "subject": "attr subject"},
	)
	require.NoError(t, err)
	assert.Equal(t, "attr@x.com", req.Recipient)
	assert.Equal(t, "attr subject", req.Subject)
}

func TestParseBody_ContentPrecedence(t *testing.T) {
	req, err := ParseBody(`{"to":"u@x.com","content":"from content","html":"from html","text":"from text","body":"from body"}`, nil)
	require.NoError(t, err)
	assert.Equal(t, "from content", req.Body)
}

func TestParseBody_ContentTypeOverridesHTMLInference(t *testing.T) {
	req, err := ParseBody(`{"to":"u@x.com","html":"<p>x</p>","contentType":"text"}`, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ContentKind("text"), req.ContentKind)
}

func TestParseBody_MalformedJSON(t *testing.T) {
	_, err := ParseBody(`not json`, nil)
	require.Error(t, err)
	var parseErr *ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestParseBody_MissingRecipient(t *testing.T) {
	_, err := ParseBody(`{"subject":"hi","text":"hello"}`, nil)
	require.Error(t, err)
}

func TestParseBody_MissingContent(t *testing.T) {
	_, err := ParseBody(`{"to":"u@x.com","subject":"hi"}`, nil)
	require.Error(t, err)
}

func TestParseBody_UnknownFieldsPreservedInMetadata(t *testing.T) {
	req, err := ParseBody(`{"to":"u@x.com","text":"hi","campaign_id":"42"}`, nil)
	require.NoError(t, err)
	assert.Equal(t, "42", req.Metadata["campaign_id"])
}

func TestParseBody_MalformedRecipientYieldsUnknownDomain(t *testing.T) {
	req, err := ParseBody(`{"to":"not-an-address","text":"hi"}`, nil)
	require.NoError(t, err)
	assert.Equal(t, "unknown", req.Domain())
}
