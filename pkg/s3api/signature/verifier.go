// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package signature

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/LeeDigitalWorks/zapgate/pkg/s3api/s3consts"
	"github.com/LeeDigitalWorks/zapgate/pkg/s3api/s3err"
)

// V4Verifier checks inbound SigV4 Authorization headers against the server's
// own credentials by signing the request again and comparing.
type V4Verifier struct {
	signer *Signer
}

func NewV4Verifier(creds Credentials) *V4Verifier {
	return &V4Verifier{signer: NewSigner(creds)}
}

// Verify checks the signature on r. bodyHash is the hex SHA-256 of the body
// r arrived with. Failures are *s3err.RequestError with ErrSignatureMissing
// or ErrSignatureInvalid.
func (v *V4Verifier) Verify(r *http.Request, bodyHash string) error {
	header := r.Header.Get(s3consts.Authorization)
	if header == "" {
		return s3err.New(s3err.ErrSignatureMissing, "Missing signature")
	}

	auth, err := ParseAuthorization(header)
	if err != nil {
		return s3err.New(s3err.ErrSignatureInvalid, "Malformed Authorization header")
	}

	if auth.AccessKeyID != v.signer.creds.AccessKeyID {
		return s3err.New(s3err.ErrSignatureInvalid, "Request is signed with wrong accessKeyId")
	}

	amzDate := requestDate(r)
	if amzDate == "" {
		return s3err.New(s3err.ErrSignatureInvalid, "Missing x-amz-date header")
	}

	payloadHash, rerr := payloadHashFor(r, bodyHash)
	if rerr != nil {
		return rerr
	}

	cr := NewCanonicalRequest(r.Method, r.URL, signedFields(r, auth.SignedHeaders), payloadHash)
	expected := v.signer.SignCanonical(cr, amzDate)

	if !constantTimeCompare(auth.Signature, expected.Signature) {
		return s3err.New(s3err.ErrSignatureInvalid, "Calculated signature does not match the request signature")
	}
	return nil
}

// requestDate returns x-amz-date, or the Date header converted to the basic
// ISO 8601 form.
func requestDate(r *http.Request) string {
	if d := r.Header.Get(s3consts.XAmzDate); d != "" {
		return d
	}
	if d := r.Header.Get(s3consts.Date); d != "" {
		if t, err := time.Parse(time.RFC1123, d); err == nil {
			return t.UTC().Format(Iso8601BasicFormat)
		}
	}
	return ""
}

// payloadHashFor picks the payload hash the client signed with. A declared
// digest has to match the body that actually arrived.
func payloadHashFor(r *http.Request, bodyHash string) (string, *s3err.RequestError) {
	declared := r.Header.Get(s3consts.XAmzContentSHA256)
	switch {
	case declared == "":
		return bodyHash, nil
	case declared == UnsignedPayload:
		return declared, nil
	case strings.HasPrefix(declared, StreamingPayloadPrefix):
		return "", s3err.New(s3err.ErrSignatureInvalid, "Streaming payload signatures are not supported")
	case !strings.EqualFold(declared, bodyHash):
		return "", s3err.New(s3err.ErrSignatureInvalid, "x-amz-content-sha256 does not match the request body")
	}
	return declared, nil
}

// signedFields collects the inbound values of the headers the client signed.
// A signed header that is absent is folded in with an empty value.
func signedFields(r *http.Request, names []string) []HeaderField {
	fields := make([]HeaderField, 0, len(names))
	for _, name := range names {
		switch name {
		case "host":
			fields = append(fields, HeaderField{Name: name, Value: r.Host})
			continue
		case "content-length":
			if len(r.Header.Values(name)) == 0 && r.ContentLength >= 0 {
				fields = append(fields, HeaderField{Name: name, Value: strconv.FormatInt(r.ContentLength, 10)})
				continue
			}
		}

		values := r.Header.Values(name)
		if len(values) == 0 {
			fields = append(fields, HeaderField{Name: name})
			continue
		}
		for _, v := range values {
			fields = append(fields, HeaderField{Name: name, Value: v})
		}
	}
	return fields
}
