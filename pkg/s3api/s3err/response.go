// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package s3err

import (
	"bytes"
	"encoding/xml"
	"net/http"

	"github.com/LeeDigitalWorks/zapgate/pkg/s3api/s3consts"
)

const (
	xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"

	iamNamespace = "https://iam.amazonaws.com/doc/2010-05-08/"

	noCache = "max-age=0, no-cache, no-store"
)

// Error is the generic S3 error body.
type Error struct {
	XMLName xml.Name `xml:"Error"`
	Code    string   `xml:"Code"`
	Message string   `xml:"Message"`
}

// ErrorResponse is the IAM style envelope S3-compatible services use for
// SignatureDoesNotMatch. It carries a request id for correlation.
type ErrorResponse struct {
	XMLName   xml.Name        `xml:"ErrorResponse"`
	Xmlns     string          `xml:"xmlns,attr"`
	Error     senderErrorBody `xml:"Error"`
	RequestID string          `xml:"RequestId"`
}

type senderErrorBody struct {
	Type    string `xml:"Type"`
	Code    string `xml:"Code"`
	Message string `xml:"Message"`
}

// Body renders the XML document for err. Signature mismatches use the
// ErrorResponse envelope with requestID; everything else uses the generic
// Error document.
func Body(err *RequestError, requestID string) []byte {
	var v any
	if err.Code == ErrSignatureInvalid {
		v = ErrorResponse{
			Xmlns: iamNamespace,
			Error: senderErrorBody{
				Type:    "Sender",
				Code:    err.Code.Code(),
				Message: err.Message,
			},
			RequestID: requestID,
		}
	} else {
		v = Error{
			Code:    err.Code.Code(),
			Message: err.Message,
		}
	}

	var buf bytes.Buffer
	buf.WriteString(xmlHeader)
	e := xml.NewEncoder(&buf)
	e.Indent("", "  ")
	// Encoding fixed structs of strings cannot fail.
	_ = e.Encode(v)
	return buf.Bytes()
}

// WriteErrorResponse writes err as an XML error response with the status code
// carried by its kind.
func WriteErrorResponse(w http.ResponseWriter, err error, requestID string) {
	reqErr := FromError(err)
	body := Body(reqErr, requestID)

	w.Header().Set(s3consts.ContentType, "application/xml")
	w.Header().Set(s3consts.CacheControl, noCache)
	if requestID != "" {
		w.Header().Set(s3consts.XAmzRequestID, requestID)
	}
	w.WriteHeader(reqErr.HTTPStatusCode())
	w.Write(body)
}
