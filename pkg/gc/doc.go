/*
Package gc prunes storage on a fixed interval. Under RemoveSpentInputs it
deletes inputs whose spending slot fell behind the rollback horizon, then
collects datums and scripts no surviving input references; under
MarkSpentInputs only the orphan collection runs. Each cycle executes inside
the long-lived writer's lock, so pruning never races the chain consumer.
*/
package gc
