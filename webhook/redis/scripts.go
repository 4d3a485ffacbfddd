package redis

import "github.com/redis/go-redis/v9"

// Script result codes shared by the transition scripts
const (
	claimMissing int64 = -1 // event hash does not exist
	claimLost    int64 = 0  // event exists but is not in the required status
	claimWon     int64 = 1
)

/* claimScript: Pending -> Delivering
 * KEYS[1] event hash, KEYS[2] pending zset, KEYS[3] pending set, KEYS[4] delivering set
 * ARGV[1] event id, ARGV[2] now (unix ms)
 */
var claimScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
if redis.call("HGET", KEYS[1], "status") ~= "pending" then
  return 0
end
redis.call("HSET", KEYS[1], "status", "delivering", "last_attempt", ARGV[2], "next_retry_at", 0, "updated_at", ARGV[2])
redis.call("ZREM", KEYS[2], ARGV[1])
redis.call("SMOVE", KEYS[3], KEYS[4], ARGV[1])
return 1
`)

/* completeScript writes an attempt outcome only while the event is still
 * Delivering, which keeps terminal states sticky when a cancel raced the attempt
 * KEYS[1] event hash, KEYS[2] pending zset, KEYS[3] delivering set, KEYS[4] target status set
 * ARGV: id, status, retry_count, next_retry_at (unix ms, 0 for none), response_code, response_body, updated_at (unix ms)
 */
var completeScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
if redis.call("HGET", KEYS[1], "status") ~= "delivering" then
  return 0
end
redis.call("HSET", KEYS[1],
  "status", ARGV[2],
  "retry_count", ARGV[3],
  "next_retry_at", ARGV[4],
  "response_code", ARGV[5],
  "response_body", ARGV[6],
  "updated_at", ARGV[7])
redis.call("SMOVE", KEYS[3], KEYS[4], ARGV[1])
if ARGV[2] == "pending" then
  redis.call("ZADD", KEYS[2], tonumber(ARGV[4]), ARGV[1])
else
  redis.call("ZREM", KEYS[2], ARGV[1])
end
return 1
`)

/* requeueScript: Failed -> Pending with a reset retry budget (operator retry)
 * KEYS[1] event hash, KEYS[2] pending zset, KEYS[3] failed set, KEYS[4] pending set
 * ARGV[1] event id, ARGV[2] now (unix ms)
 */
var requeueScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
if redis.call("HGET", KEYS[1], "status") ~= "failed" then
  return 0
end
redis.call("HSET", KEYS[1], "status", "pending", "retry_count", 0, "next_retry_at", ARGV[2], "updated_at", ARGV[2])
redis.call("SMOVE", KEYS[3], KEYS[4], ARGV[1])
redis.call("ZADD", KEYS[2], tonumber(ARGV[2]), ARGV[1])
return 1
`)

/* cancelScript: Pending -> Canceled
 * KEYS[1] event hash, KEYS[2] pending zset, KEYS[3] pending set, KEYS[4] canceled set
 * ARGV[1] event id, ARGV[2] now (unix ms)
 */
var cancelScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
if redis.call("HGET", KEYS[1], "status") ~= "pending" then
  return 0
end
redis.call("HSET", KEYS[1], "status", "canceled", "next_retry_at", 0, "updated_at", ARGV[2])
redis.call("ZREM", KEYS[2], ARGV[1])
redis.call("SMOVE", KEYS[3], KEYS[4], ARGV[1])
return 1
`)
