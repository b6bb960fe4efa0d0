// Package modifiers parses the compact transform argument grammar used in
// media URLs into a canonical, order-independent option Set.
//
// Grammar:
//
//	args   = "_" | token *( ("," | "&") token )
//	token  = key [ (":" | "=" | "_") value ]
//
// Short aliases (w, h, f, q, c, s, pos, a, b, d, t) normalize to their long
// names. "s_300x200" expands into width and height.
//
//	modifiers.Parse("w_300,h_200,f_webp").Canonical() // format_webp,height_200,width_300
//	modifiers.Parse("h=200&w=300&f=webp").Canonical() // same
//
// Negotiation helpers fill "auto" formats and codecs from the Accept header.
package modifiers
