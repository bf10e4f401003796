// Package lineage defines the pipeline's identity model: the total
// ordering of stages, the record-name scheme chaining each stage's
// output back through all ancestor keys, and the deterministic request
// identifier generator.
//
// Consumers never synthesize identifiers themselves; all identifier
// construction goes through this package so reruns over identical input
// re-derive identical names. Identity hashing uses SHA-256 with domain
// separation over an NFC-normalized canonical encoding.
package lineage
