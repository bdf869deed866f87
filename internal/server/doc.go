// Package server implements the HTTP service that hands out freshly built
// web-assembly bundles. Each bundle lives in its own directory under a
// temp root, named after its build id. The package resolves and validates
// requested paths, enforces the content-type whitelist, streams files to
// clients and removes every bundle a fixed delay after its index was served.
package server
