// Package proposalledger implements the proposal voting ledger inside the
// governance context.
//
// Authors open proposals against a subject identity, voters cast or switch a
// single yes/no ballot until the proposal expires, and the author closes it to
// record the majority outcome. Each proposal lives in a fixed-size record
// addressed by a handle derived from its author and title; every mutation of
// one record is serialized and either fully applied or not applied at all.
package proposalledger
