// Package codec converts between feed frames and tagged records.
//
// Inbound frames are JSON arrays of objects, each carrying a "msg" type tag:
//
//	[{"msg":"init","sid":"S1"},{"msg":"quote","ticker":"EURUSD","bid":"1.05",...}]
//
// Outbound frames are a single JSON object.
package codec
