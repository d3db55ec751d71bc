// Package ui holds the terminal styles used by the mlsync CLI.
//
// Styles are built with lipgloss. When output is not a terminal lipgloss
// drops the escape sequences, so rendered strings stay plain in pipes and tests.
package ui
