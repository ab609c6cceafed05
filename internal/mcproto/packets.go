package mcproto

// Packet ids for protocol 47 (1.8.x).
const (
	// handshaking, serverbound
	idHandshake int32 = 0x00

	// login, serverbound
	idLoginStart int32 = 0x00

	// login, clientbound
	idLoginDisconnect     int32 = 0x00
	idEncryptionRequest   int32 = 0x01
	idLoginSuccess        int32 = 0x02
	idLoginSetCompression int32 = 0x03

	// play, clientbound
	idKeepAliveCB      int32 = 0x00
	idJoinGame         int32 = 0x01
	idChatCB           int32 = 0x02
	idPositionLookCB   int32 = 0x08
	idPlayerListItem   int32 = 0x38
	idTabCompleteCB    int32 = 0x3A
	idPlayDisconnect   int32 = 0x40
	idPlaySetThreshold int32 = 0x46

	// play, serverbound
	idKeepAliveSB    int32 = 0x00
	idChatSB         int32 = 0x01
	idPositionLookSB int32 = 0x06
	idTabCompleteSB  int32 = 0x14
)

const nextStateLogin = 2

// player list item actions
const (
	listAddPlayer         = 0
	listUpdateGamemode    = 1
	listUpdateLatency     = 2
	listUpdateDisplayName = 3
	listRemovePlayer      = 4
)

// chat lines longer than this are rejected by 1.8 servers
const maxChatLen = 100
