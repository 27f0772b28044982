// Package sink forwards dispatched quotes to downstream consumers.
//
// The Redis publisher subscribes to onquote events and PUBLISHes each quote as
// JSON on "<prefix><ticker>". Nothing is stored: subscribers that are not
// listening miss the quote.
package sink
