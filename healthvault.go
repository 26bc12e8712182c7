/*
Package healthvault stores numeric health readings only in encrypted form and computes averages and
comparisons over the encrypted values.

The computation layer lives in package engine. Schemes are pluggable: schemes/mask is the reference
stand-in, byte-compatible with the web client, and schemes/lattice runs the same operations on
lattigo's BGV implementation. Package vault tracks per-metric readings on top of an engine.
*/
package healthvault
