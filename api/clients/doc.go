/*
Package clients provides a Go client for the POD mint service API.

AdminClient covers both route groups of the service:

  - List, Add and Remove manage templates and authenticate with basic auth
  - Content, MintLink and Mint use the public minting API

Non-200 responses are returned as errors carrying the status code and the
response text.
*/
package clients
