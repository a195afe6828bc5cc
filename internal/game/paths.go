package game

import "strconv"

// Logical layout of the shared document tree:
//
//	rooms/{roomId}/createdTime
//	rooms/{roomId}/hasGameStarted
//	rooms/{roomId}/ownerLease            ("ownerId|expiresAt" leaf)
//	rooms/{roomId}/isReadyForGame/{playerId}
//	rooms/{roomId}/players/{playerId}/{name,joinTime}
//	rooms/{roomId}/totalScores/{playerId}
//	rooms/{roomId}/rounds/{roundId}/isReady/{playerId}
//	rooms/{roomId}/rounds/{roundId}/availableOpponents/{playerId}
//	rooms/{roomId}/rounds/{roundId}/battlePairs/{playerId}/{opponent,isPlaying,action}
//	rooms/{roomId}/rounds/{roundId}/scoreDiffs/{playerId}

func roomPath(roomID string) string {
	return "rooms/" + roomID
}

func playersPath(roomID string) string {
	return roomPath(roomID) + "/players"
}

func readyForGamePath(roomID string) string {
	return roomPath(roomID) + "/isReadyForGame"
}

func hasGameStartedPath(roomID string) string {
	return roomPath(roomID) + "/hasGameStarted"
}

func ownerLeasePath(roomID string) string {
	return roomPath(roomID) + "/ownerLease"
}

func totalScorePath(roomID, playerID string) string {
	return roomPath(roomID) + "/totalScores/" + playerID
}

func roundsPath(roomID string) string {
	return roomPath(roomID) + "/rounds"
}

func roundPath(roomID string, roundID int) string {
	return roundsPath(roomID) + "/" + strconv.Itoa(roundID)
}

func roundReadyPath(roomID string, roundID int) string {
	return roundPath(roomID, roundID) + "/isReady"
}

func availableOpponentsPath(roomID string, roundID int) string {
	return roundPath(roomID, roundID) + "/availableOpponents"
}

func battlePairsPath(roomID string, roundID int) string {
	return roundPath(roomID, roundID) + "/battlePairs"
}

func battlePairPath(roomID string, roundID int, playerID string) string {
	return battlePairsPath(roomID, roundID) + "/" + playerID
}

func scoreDiffsPath(roomID string, roundID int) string {
	return roundPath(roomID, roundID) + "/scoreDiffs"
}
