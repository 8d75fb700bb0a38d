package main

import (
	"github.com/Daehan-Base/awesome-x402-on-base/pkg/ap2"
	"github.com/Daehan-Base/awesome-x402-on-base/pkg/httpx"
	"github.com/Daehan-Base/awesome-x402-on-base/pkg/mandatechain"
	"github.com/Daehan-Base/awesome-x402-on-base/pkg/menu"
	"github.com/Daehan-Base/awesome-x402-on-base/pkg/x402"
	"github.com/Daehan-Base/awesome-x402-on-base/services/customer/internal/merchantclient"
)

var quoteErrorTable = []httpx.ErrorMapping{
	{Sentinel: menu.ErrUnknownOption, Status: 400, Code: "UNKNOWN_OPTION"},
	{Sentinel: ap2.ErrSchema, Status: 400, Code: "SCHEMA_ERROR"},
	{Sentinel: ap2.ErrExpiredArtifact, Status: 400, Code: "EXPIRED_ARTIFACT"},
	{Sentinel: mandatechain.ErrMissingPriorArtifact, Status: 409, Code: "MISSING_PRIOR_ARTIFACT"},
	{Sentinel: x402.ErrUnsupportedScheme, Status: 400, Code: "UNSUPPORTED_SCHEME"},
	{Sentinel: x402.ErrMissingPaymentOption, Status: 400, Code: "MISSING_PAYMENT_OPTION"},
	{Sentinel: merchantclient.ErrPaymentRejected, Status: 402, Code: "PAYMENT_REJECTED"},
}
