// Package timecodec decodes the acquisition timestamps embedded in product
// file names.
//
// GOES-R ABI names carry start and end scan tokens in ordinal form
// (YYYYDDDHHMMSSs); archive names carry a single calendar token
// (YYYYMMDDHHmm). CenterTime returns the instant used to order files and
// advance watermarks, and Bucket/PublishStamp produce the normalized time
// embedded in published names.
package timecodec
