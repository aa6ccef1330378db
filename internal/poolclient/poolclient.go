// Package poolclient implements PoolCommunication (spec.md section
// 4.F): login/failover across a preference-ordered pool list, the
// line-delimited JSON-RPC socket, keepalive, and job/share message
// routing. Grounded line-by-line on
// original_source/src/PoolCommunication/PoolCommunication.cpp.
package poolclient

import (
	"bufio"
	"crypto/tls"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"net"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AGPFMiner/argonminer/internal/poolmsg"
	"github.com/AGPFMiner/argonminer/internal/types"
	"go.uber.org/zap"
)

const (
	maxLoginAttempts       = 5
	poolLoginRetryInterval = 10 * time.Second
	keepAliveInterval      = 120 * time.Second
	findNewPoolPollInterval = 5 * time.Second
)

// Dialer opens a connection to host:port, optionally over TLS. Exposed
// so tests can substitute an in-memory pipe.
type Dialer func(pool types.Pool) (net.Conn, error)

func defaultDialer(pool types.Pool) (net.Conn, error) {
	addr := net.JoinHostPort(pool.Host, strconv.Itoa(int(pool.Port)))
	if pool.SSL {
		return tls.Dial("tcp", addr, &tls.Config{})
	}
	return net.DialTimeout("tcp", addr, poolLoginRetryInterval)
}

// Communication manages the active pool connection, preference-climbing
// reconnection, and message dispatch.
type Communication struct {
	allPools []types.Pool
	dial     Dialer
	logger   *zap.Logger

	// loginRetryInterval overrides poolLoginRetryInterval; exposed so
	// tests can shrink the retry backoff instead of waiting out the
	// production interval.
	loginRetryInterval time.Duration

	onNewJob           func(job types.Job)
	onHashAccepted     func(shareID string)
	onPoolSwapped      func(pool types.Pool)
	onPoolDisconnected func()

	mu               sync.Mutex
	conn             net.Conn
	writer           *bufio.Writer
	currentPool      types.Pool
	currentJob       types.Job
	currentPoolIndex int
	shouldFindNewPool bool

	cond       *sync.Cond
	shouldStop int32 // atomic

	wg sync.WaitGroup
}

// New sorts pools by ascending Priority (0 = most preferred, matching
// PoolCommunication's constructor) and builds a Communication ready to
// start managing.
func New(pools []types.Pool, logger *zap.Logger) *Communication {
	sorted := make([]types.Pool, len(pools))
	copy(sorted, pools)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})

	c := &Communication{
		allPools:           sorted,
		dial:               defaultDialer,
		logger:             logger,
		loginRetryInterval: poolLoginRetryInterval,
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// OnNewJob registers the function called whenever a new job is
// discovered, mirroring PoolCommunication::onNewJob.
func (c *Communication) OnNewJob(f func(job types.Job)) { c.onNewJob = f }

// OnHashAccepted registers the function called whenever the pool
// accepts a submitted share.
func (c *Communication) OnHashAccepted(f func(shareID string)) { c.onHashAccepted = f }

// OnPoolSwapped registers the function called whenever the active pool
// changes.
func (c *Communication) OnPoolSwapped(f func(pool types.Pool)) { c.onPoolSwapped = f }

// OnPoolDisconnected registers the function called whenever the active
// pool connection is lost.
func (c *Communication) OnPoolDisconnected(f func()) { c.onPoolDisconnected = f }

// CurrentJob returns the most recent job pushed by the pool.
func (c *Communication) CurrentJob() types.Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentJob
}

// PoolLabel satisfies hashmanager.Pool, used to prefix log lines with
// "[host:port] " the way formatPool does.
func (c *Communication) PoolLabel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentPool.String()
}

// IsNiceHash reports whether the active pool requires nicehash-style
// nonce masking.
func (c *Communication) IsNiceHash() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentPool.NiceHash
}

// StartManaging launches the reconnect/keepalive manager loop. Safe to
// call once; call Stop before calling it again.
func (c *Communication) StartManaging() {
	atomic.StoreInt32(&c.shouldStop, 0)

	c.mu.Lock()
	c.shouldFindNewPool = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.managePools()
}

// Stop closes the current connection and joins the manager loop.
func (c *Communication) Stop() {
	atomic.StoreInt32(&c.shouldStop, 1)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	c.cond.Broadcast()

	if conn != nil {
		conn.Close()
	}

	c.wg.Wait()
}

func (c *Communication) stopped() bool {
	return atomic.LoadInt32(&c.shouldStop) != 0
}

func formatPool(pool types.Pool) string {
	return pool.String()
}

func (c *Communication) loginFailed(pool types.Pool, attempt int, connectFail bool, customMessage string) {
	if c.logger == nil {
		return
	}
	reason := "login"
	if connectFail {
		reason = "connect"
	}
	c.logger.Warn("failed to "+reason+" to pool",
		zap.String("pool", formatPool(pool)),
		zap.Int("attempt", attempt),
		zap.Int("max", maxLoginAttempts),
		zap.String("error", customMessage))

	if attempt != maxLoginAttempts {
		c.logger.Info("retrying pool login",
			zap.String("pool", formatPool(pool)),
			zap.Duration("in", c.loginRetryInterval))
	}
}

// tryLogin attempts to connect and authenticate to pool, retrying up to
// maxLoginAttempts times. On success it swaps in the new connection,
// replacing any previous one, and fires OnPoolSwapped.
func (c *Communication) tryLogin(pool types.Pool) bool {
	if c.logger != nil {
		c.logger.Info("attempting to connect to pool", zap.String("pool", formatPool(pool)))
	}

	for attempt := 1; attempt <= maxLoginAttempts; attempt++ {
		conn, err := c.dial(pool)
		if err != nil {
			c.loginFailed(pool, attempt, true, err.Error())
			time.Sleep(c.loginRetryInterval)
			continue
		}

		writer := bufio.NewWriter(conn)
		reader := bufio.NewReader(conn)

		req := poolmsg.LoginRequest{
			ID:     1,
			Method: "login",
			Params: poolmsg.LoginParams{
				Login: pool.Username,
				Pass:  pool.Password,
				RigID: pool.RigID,
				Agent: pool.GetAgent(),
				Algo:  pool.Algorithm,
			},
		}

		if err := writeJSONLine(writer, req); err != nil {
			conn.Close()
			c.loginFailed(pool, attempt, false, err.Error())
			time.Sleep(c.loginRetryInterval)
			continue
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			conn.Close()
			c.loginFailed(pool, attempt, false, err.Error())
			time.Sleep(c.loginRetryInterval)
			continue
		}

		login, loginErr := poolmsg.ParseLoginReply([]byte(line))
		if loginErr != nil || login.Job.Blob == "" {
			if errReply, err := poolmsg.ParseErrorReply([]byte(line)); err == nil {
				conn.Close()
				c.loginFailed(pool, attempt, false, errReply.Message)
				time.Sleep(c.loginRetryInterval)
				continue
			}
			conn.Close()
			c.loginFailed(pool, attempt, false, "unexpected reply to login")
			time.Sleep(c.loginRetryInterval)
			continue
		}

		if c.logger != nil {
			c.logger.Info("logged in", zap.String("pool", formatPool(pool)))
		}

		job := jobFromPayload(login.Job)

		loggedInPool := pool
		loggedInPool.LoginID = login.ID
		if job.Nonce() != 0 {
			loggedInPool.NiceHash = true
		}
		updateJobInfoFromPool(&job, loggedInPool)

		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.conn = conn
		c.writer = writer
		c.currentPool = loggedInPool
		c.currentJob = job
		c.mu.Unlock()

		c.wg.Add(1)
		go c.readLoop(conn, reader, loggedInPool)

		if c.onPoolSwapped != nil {
			c.onPoolSwapped(loggedInPool)
		}
		if c.onNewJob != nil {
			c.onNewJob(job)
		}

		return true
	}

	if c.logger != nil {
		c.logger.Warn("all login/connect attempts failed", zap.String("pool", formatPool(pool)))
	}

	return false
}

// updateJobInfoFromPool sets nicehash/algorithm on a freshly received
// job from the owning pool's configuration, mirroring
// PoolCommunication::updateJobInfoFromPool.
func updateJobInfoFromPool(job *types.Job, pool types.Pool) {
	job.IsNiceHash = pool.NiceHash
	if job.Algorithm == "" || pool.DisableAutoAlgoSelect {
		job.Algorithm = pool.Algorithm
	}
}

// parseTarget decodes the wire target field, expanding the 4-byte
// compact form (8 hex chars) into a 64-bit threshold per the standard
// rule: left-shift into the high 32 bits. An already-8-byte target (16
// hex chars) is used as-is.
func parseTarget(s string) uint64 {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0
	}
	if len(s) <= 8 {
		return v << 32
	}
	return v
}

func jobFromPayload(p poolmsg.JobPayload) types.Job {
	blob, _ := hex.DecodeString(p.Blob)

	return types.Job{
		RawBlob:   blob,
		JobID:     p.JobID,
		Target:    parseTarget(p.Target),
		Algorithm: p.Algo,
	}
}

// managePools is the reconnect/keepalive loop: try successively less
// preferred pools whenever the current one disconnects, keeping alive
// whatever it ends up connected to every 120 seconds (counted from the
// last keepalive, whatever other traffic passed in between).
func (c *Communication) managePools() {
	defer c.wg.Done()

	lastKeptAlive := time.Now()

	for !c.stopped() {
		c.mu.Lock()
		if c.shouldFindNewPool {
			c.currentPoolIndex = len(c.allPools)
		}
		upperBound := c.currentPoolIndex
		c.mu.Unlock()

		for pref := 0; pref < upperBound; pref++ {
			if c.stopped() {
				return
			}

			pool := c.allPools[pref]

			if c.tryLogin(pool) {
				c.mu.Lock()
				c.currentPoolIndex = pref
				c.shouldFindNewPool = false
				// Keep a detected nicehash flag for later logins to this pool.
				c.allPools[pref].NiceHash = c.currentPool.NiceHash
				c.mu.Unlock()
				break
			}
		}

		c.mu.Lock()
		stillSearching := c.shouldFindNewPool
		c.mu.Unlock()

		if stillSearching {
			continue
		}

		if time.Since(lastKeptAlive) >= keepAliveInterval {
			c.keepAlive()
			lastKeptAlive = time.Now()
		}

		c.waitForReconnectSignal()
	}
}

// waitForReconnectSignal blocks for up to findNewPoolPollInterval, or
// until a readLoop disconnect sets shouldFindNewPool, whichever is
// first -- the Go analogue of m_findNewPool.wait_for.
func (c *Communication) waitForReconnectSignal() {
	timer := time.AfterFunc(findNewPoolPollInterval, func() {
		c.cond.Broadcast()
	})
	defer timer.Stop()

	c.mu.Lock()
	if !c.shouldFindNewPool && !c.stopped() {
		c.cond.Wait()
	}
	c.mu.Unlock()
}

func (c *Communication) keepAlive() {
	c.mu.Lock()
	pool := c.currentPool
	writer := c.writer
	c.mu.Unlock()

	if writer == nil {
		return
	}

	req := poolmsg.KeepAliveRequest{ID: 1, Method: "keepalived"}
	req.Params.ID = pool.LoginID
	req.Params.RigID = pool.RigID
	req.Params.Agent = pool.GetAgent()

	c.writeLocked(writer, req)
}

func (c *Communication) getNewJob() {
	c.mu.Lock()
	pool := c.currentPool
	writer := c.writer
	c.mu.Unlock()

	if writer == nil {
		return
	}

	req := poolmsg.GetJobRequest{ID: 1, Method: "getjob"}
	req.Params.ID = pool.LoginID
	req.Params.RigID = pool.RigID
	req.Params.Agent = pool.GetAgent()

	c.writeLocked(writer, req)
}

// SubmitShare reports a validated share to the pool, satisfying
// hashmanager.Pool.
func (c *Communication) SubmitShare(hash [32]byte, jobID string, nonce uint32) {
	c.mu.Lock()
	pool := c.currentPool
	writer := c.writer
	c.mu.Unlock()

	if writer == nil {
		return
	}

	nonceBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(nonceBytes, nonce)

	req := poolmsg.SubmitRequest{
		ID:     1,
		Method: "submit",
		Params: poolmsg.SubmitParams{
			ID:     pool.LoginID,
			JobID:  jobID,
			Nonce:  hex.EncodeToString(nonceBytes),
			Result: hex.EncodeToString(hash[:]),
			RigID:  pool.RigID,
			Agent:  pool.GetAgent(),
		},
	}

	c.writeLocked(writer, req)
}

func (c *Communication) writeLocked(writer *bufio.Writer, v interface{}) {
	c.mu.Lock()
	err := writeJSONLine(writer, v)
	c.mu.Unlock()

	if err != nil && c.logger != nil {
		c.logger.Warn("failed to write to pool socket", zap.Error(err))
	}
}

func writeJSONLine(w *bufio.Writer, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	return w.Flush()
}

// readLoop scans newline-delimited messages off conn until a read
// fails (the connection closed, including by Stop or a pool swap),
// dispatching each to the registered callback per its Kind.
func (c *Communication) readLoop(conn net.Conn, reader *bufio.Reader, pool types.Pool) {
	defer c.wg.Done()

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			c.handleDisconnect(conn)
			return
		}

		if len(line) == 0 {
			continue
		}

		decoded, err := poolmsg.Classify([]byte(line))
		if err != nil {
			if c.logger != nil {
				c.logger.Warn("malformed message from pool", zap.Error(err))
			}
			continue
		}

		switch decoded.Kind {
		case poolmsg.KindJobPush:
			job := jobFromPayload(decoded.Job)

			c.mu.Lock()
			updateJobInfoFromPool(&job, c.currentPool)
			c.currentJob = job
			c.mu.Unlock()

			if c.onNewJob != nil {
				c.onNewJob(job)
			}

		case poolmsg.KindStatusReply:
			switch decoded.Status.Status {
			case "OK":
				if c.onHashAccepted != nil {
					c.onHashAccepted(pool.LoginID)
				}
			case "KEEPALIVED":
				// no-op, connection confirmed alive.
			default:
				if c.logger != nil {
					c.logger.Warn("unknown status message", zap.String("status", decoded.Status.Status))
				}
			}

		case poolmsg.KindErrorReply:
			if c.logger != nil {
				c.logger.Info("error message from pool", zap.String("message", decoded.Err.Message))
			}

			switch decoded.Err.Message {
			case "Invalid job id":
				c.getNewJob()
			case "Invalid nonce; is miner not compatible with NiceHash?":
				if c.logger != nil {
					c.logger.Warn(`make sure "niceHash" is set to true in your config`)
				}
			case "Low difficulty share":
				if c.logger != nil {
					c.logger.Warn("probably a stale job, unless only getting rejected shares; make sure the correct mining algorithm is selected for this pool")
				}
			}

		default:
			if c.logger != nil {
				c.logger.Warn("unexpected message from pool", zap.String("raw", line))
			}
		}
	}
}

func (c *Communication) handleDisconnect(conn net.Conn) {
	if c.logger != nil {
		c.logger.Warn("lost connection with pool")
	}

	if c.onPoolDisconnected != nil {
		c.onPoolDisconnected()
	}

	c.mu.Lock()
	if c.conn == conn {
		c.shouldFindNewPool = true
	}
	c.mu.Unlock()

	c.cond.Broadcast()
}
