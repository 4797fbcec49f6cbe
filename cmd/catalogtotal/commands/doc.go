// Package commands defines the catalogtotal CLI.
//
// Commands
//
//   - (root)   Print the per-rarity value breakdown of the item dataset and
//     append it to the history file
//   - history  Print the recorded final totals
package commands
