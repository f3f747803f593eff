// Package consensusengine implements the block consensus service inside the
// quilt-review context.
//
// Volunteers submit votes on scanned quilt blocks. The module stores each vote,
// re-derives the block's consensus from the full vote list and, once two
// identical submissions exist, writes the canonical orientation record and
// emits a block event through the outbox. Operator overrides, recrop handling
// and dashboard statistics live alongside the engine; infrastructure is kept
// behind ports and adapters.
package consensusengine
