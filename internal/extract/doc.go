// Package extract finds the outbound references of HTML, CSS and script
// content.
//
// # Scanning
//
// Scan reports each reference as a Span: byte offsets into the original
// content plus the markup context (a model.Hint). The rewriter replaces
// spans in place, so every byte outside a span is preserved exactly.
//
// HTML is tokenized with golang.org/x/net/html, which never fails on
// malformed markup. The following are recognized:
//   - href/src style attributes of a, link, script, img, source, video,
//     audio, iframe, embed, object, track and input[type=image]
//   - srcset candidates
//   - social preview images in meta tags
//   - url() inside style attributes and <style> blocks
//   - quoted URL literals in inline scripts
//
// CSS and script scanning is pattern based.
//
// # Extraction and scope
//
// Extract resolves spans into absolute, normalized URLs. Scope then decides
// whether each one is followed, ignored or recorded as off-site.
package extract
