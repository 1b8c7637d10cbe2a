// Package folia implements the subset of the FoLiA linguistic annotation
// format that docserve needs: an element tree with xml:id indexing, text
// content, inline annotations (pos, lemma, ...) and a stable serialization.
//
// Structural elements (text, p, s, w, ...) carry an xml:id; inline
// annotations do not and are addressed through their parent. Text content
// lives in <t> children.
package folia
