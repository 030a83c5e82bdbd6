// Package conflict implements the three-way merge conflict resolver (§4.5):
// given a file's contents at a common ancestor, on "our" side and on
// "their" side, produce a merged result under one of four policies, or
// report that the two sides could not be reconciled.
//
// The cargo-rail crate this was distilled from referenced its own
// core::conflict module for this logic, but that module fell outside the
// portion of the original source retained for this port; the merge
// algorithm below follows the policy descriptions directly and implements
// the textual three-way merge with the same line-based diff approach
// go-git's merge machinery and diffmatchpatch-style libraries use.
package conflict
