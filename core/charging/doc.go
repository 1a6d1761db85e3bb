// Package charging allocates a fixed set of charging bays to AGVs.
//
// Requests enter a FIFO RequestQueue. A Coordinator runs at most one dispatch
// loop at a time: the loop evicts requests that waited longer than the drop
// threshold, acquires a bay slot with a short bounded wait, assigns the head
// of the queue to the next free station in round-robin order and hands the
// pair to a Worker running on a pool sized to the number of stations.
//
// The loop state is a small machine {idle, dispatching}. Submit moves it to
// dispatching and starts the loop; the loop only returns to idle after
// re-checking that the queue is empty while holding the same lock, so a
// request can never be left queued without a loop to serve it.
package charging
