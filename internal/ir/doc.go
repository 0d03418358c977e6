// Package ir provides the data model shared by every temporal package.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps the record model the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Validity intervals are half-open: [ValidStart, ValidEnd)
//   - A nil ValidEnd means open-ended (valid indefinitely)
//   - Payload values are constrained to Value types (no floats)
//   - All timestamps are normalised to UTC before they leave this package
//   - All JSON tags use snake_case
package ir
