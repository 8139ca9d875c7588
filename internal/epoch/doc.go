// Package epoch implements epoch-based reclamation for arena slices.
//
// Every map operation enters an epoch before touching shared memory and
// leaves it on every exit path. Freed slices are not returned to the arena
// immediately; they are retired with the epoch at which they became
// unreachable and handed back only once no in-flight operation could still
// observe them (its entered epoch precedes the retirement stamp).
//
// This is the sole mechanism preventing use-after-free without a garbage
// collector: the arena recycles memory aggressively, and the reclaimer
// guarantees recycling never races a reader.
//
// Reclamation is opportunistic. Write operations piggy-back a paced drain of
// the retirement queue; the arena additionally forces a drain when it runs
// out of budget.
package epoch
