/*
Package consumer drives chain synchronization: it negotiates an
intersection with the producer, folds blocks into the database, honors
producer-driven rollbacks, and services forced rollbacks requested over
HTTP when patterns are added with history.

The consumer is a state machine:

	Initializing → Intersecting → Following ⇄ ForcedRollback
	                    ↑             │
	                    └─(disconnect)┘          terminal: Stopped

All persistence effects of block N commit before any effect of block N+1
becomes visible: each roll-forward is folded inside a single write
transaction that also appends the block's checkpoint and thins the ring.
The pattern set is sampled from the registry once per block, so a pattern
mutation becomes effective at the next block boundary.
*/
package consumer
