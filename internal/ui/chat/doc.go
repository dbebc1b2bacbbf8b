// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the Bubble Tea chat view over an assistant hub.
//
// The model subscribes to the active surface's controller and re-renders the
// transcript whenever a turn is appended. While a reply is pending a typing
// indicator is shown; fresh conversations list the surface's suggestions.
//
// # Keys
//
//   - Enter: send the input
//   - Up/Down on an empty input: cycle suggestions
//   - Tab / Shift+Tab: next / previous surface
//   - Ctrl+N: new conversation
//   - Ctrl+D: delete the active conversation
//   - Ctrl+H: history panel with search
//   - PgUp/PgDn: scroll the transcript
//   - Ctrl+C / Ctrl+Q: quit
package chat
