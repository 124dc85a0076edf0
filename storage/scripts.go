package storage

import "github.com/redis/go-redis/v9"

var (
	// luaUnlock deletes a lock key only if it still holds the caller token.
	luaUnlock = redis.NewScript(`
	   if redis.call("GET", KEYS[1]) == ARGV[1] then
	      return redis.call("DEL", KEYS[1])
	   end
	   return 0
	`)

	// luaRenew extends the lease of a lock key only if it still holds the
	// caller token. Returns 0 when the lock was lost.
	luaRenew = redis.NewScript(`
	   if redis.call("GET", KEYS[1]) == ARGV[1] then
	      return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	   end
	   return 0
	`)

	// luaClaimMax moves the member with the highest score of the sorted set
	// KEYS[1] to the end of the JSON array stored in field ARGV[1] of hash
	// KEYS[2] and returns it.
	luaClaimMax = redis.NewScript(`
	   local top = redis.call("ZREVRANGE", KEYS[1], 0, 0)
	   if #top == 0 then
	      return false
	   end
	   local v = top[1]

	   local cur = redis.call("HGET", KEYS[2], ARGV[1])
	   local list = {}
	   if cur then
	      list = cjson.decode(cur)
	   end
	   table.insert(list, v)
	   redis.call("HSET", KEYS[2], ARGV[1], cjson.encode(list))

	   redis.call("ZREM", KEYS[1], v)
	   return v
	`)

	// luaClaimFront pops the head of list KEYS[1], appends it to the JSON
	// array stored in field ARGV[1] of hash KEYS[2] and returns it.
	luaClaimFront = redis.NewScript(`
	   local v = redis.call("LPOP", KEYS[1])
	   if not v then
	      return false
	   end

	   local cur = redis.call("HGET", KEYS[2], ARGV[1])
	   local list = {}
	   if cur then
	      list = cjson.decode(cur)
	   end
	   table.insert(list, v)
	   redis.call("HSET", KEYS[2], ARGV[1], cjson.encode(list))

	   return v
	`)

	// luaAppendItem appends ARGV[2] to the JSON array stored in field
	// ARGV[1] of hash KEYS[1] and returns the new length.
	luaAppendItem = redis.NewScript(`
	   local cur = redis.call("HGET", KEYS[1], ARGV[1])
	   local list = {}
	   if cur then
	      list = cjson.decode(cur)
	   end
	   table.insert(list, ARGV[2])
	   redis.call("HSET", KEYS[1], ARGV[1], cjson.encode(list))
	   return #list
	`)

	// luaRemoveItem removes the first occurrence of ARGV[2] from the JSON
	// array stored in field ARGV[1] of hash KEYS[1]. The field is deleted
	// when the array becomes empty. Returns 1 if an item was removed.
	luaRemoveItem = redis.NewScript(`
	   local cur = redis.call("HGET", KEYS[1], ARGV[1])
	   if not cur then
	      return 0
	   end
	   local list = cjson.decode(cur)
	   for i, v in ipairs(list) do
	      if v == ARGV[2] then
	         table.remove(list, i)
	         if #list == 0 then
	            redis.call("HDEL", KEYS[1], ARGV[1])
	         else
	            redis.call("HSET", KEYS[1], ARGV[1], cjson.encode(list))
	         end
	         return 1
	      end
	   end
	   return 0
	`)
)
