// Package docid provides type-safe identification for documents served by
// docserve.
//
// # Core Concepts
//
//  1. Key: the (namespace, document ID) pair that names a document in the
//     store. Both halves are sanitized so a key can always be mapped onto
//     the working directory without escaping it.
//
//  2. Session: an opaque identifier for one concurrent editor. Requests
//     without a session use the NoSession sentinel.
//
// # Usage Examples
//
//	key, err := docid.NewKey("corpus", "doc-001")
//	if err != nil {
//	    return err
//	}
//	path := key.Path("/var/lib/docserve") // /var/lib/docserve/corpus/doc-001.folia.xml
//
//	key, err = docid.ParseKey("corpus/doc-001")
//	session := docid.NewSessionID()
package docid
